package types

import "github.com/google/uuid"

// Identifies a session on the relay. Both peers must use the same
// identifier, it is the routing key used to pair them.
type SessionID uuid.UUID

// NewSessionID generates a random session identifier.
func NewSessionID() SessionID {
	return SessionID(uuid.New())
}

// ParseSessionID reads the textual representation of a session.
func ParseSessionID(value string) (SessionID, error) {
	id, err := uuid.Parse(value)
	if err != nil {
		return SessionID{}, err
	}
	return SessionID(id), nil
}

func (s SessionID) String() string {
	return uuid.UUID(s).String()
}
