// Package wire defines the datagram layout shared by peers and relay.
//
// Every datagram starts with a fixed size routing header, followed by
// an optional body. The relay only reads the header, the body is
// opaque to it and is forwarded unmodified.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/jabolina/go-rollback/pkg/rollback/types"
)

// The kind of datagram.
type Kind uint8

const (
	// Peer asks the relay to be registered on a session.
	Join Kind = iota + 1

	// Relay confirms the peer registration.
	Accepted

	// Peer input window, forwarded to the other peer.
	Input

	// Peer leaves the session.
	Leave

	// Relay tells the peer the session was closed.
	Closed
)

func (k Kind) String() string {
	switch k {
	case Join:
		return "join"
	case Accepted:
		return "accepted"
	case Input:
		return "input"
	case Leave:
		return "leave"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

const (
	// Identifies a datagram of this protocol.
	magic uint16 = 0x5242

	// Version of the wire layout.
	Version uint8 = 0

	// Size in bytes of the routing header.
	HeaderSize = 21

	// Largest datagram accepted by peers and relay.
	MaxDatagramSize = 1400
)

var be = binary.BigEndian

// Header is the routing information of a datagram.
//
//	magic   uint16
//	version uint8
//	kind    uint8
//	peer    uint8
//	session [16]byte
type Header struct {
	Kind    Kind
	Peer    types.PlayerID
	Session types.SessionID
}

// AppendHeader writes the header at the end of dst.
func AppendHeader(dst []byte, h Header) []byte {
	var buf [HeaderSize]byte
	be.PutUint16(buf[0:2], magic)
	buf[2] = Version
	buf[3] = uint8(h.Kind)
	buf[4] = uint8(h.Peer)
	copy(buf[5:], h.Session[:])
	return append(dst, buf[:]...)
}

// ParseHeader reads the header and returns the remaining body.
// The body references the same memory as the datagram.
func ParseHeader(datagram []byte) (Header, []byte, error) {
	if len(datagram) < HeaderSize {
		return Header{}, nil, fmt.Errorf("datagram with %d bytes: %w", len(datagram), types.ErrMalformedPacket)
	}
	if be.Uint16(datagram[0:2]) != magic {
		return Header{}, nil, fmt.Errorf("unknown magic %#x: %w", datagram[0:2], types.ErrMalformedPacket)
	}
	if datagram[2] != Version {
		return Header{}, nil, fmt.Errorf("unsupported version %d: %w", datagram[2], types.ErrMalformedPacket)
	}
	h := Header{
		Kind: Kind(datagram[3]),
		Peer: types.PlayerID(datagram[4]),
	}
	if h.Kind < Join || h.Kind > Closed {
		return Header{}, nil, fmt.Errorf("unknown %s: %w", h.Kind, types.ErrMalformedPacket)
	}
	if h.Peer >= types.MaxPlayers {
		return Header{}, nil, fmt.Errorf("peer %d out of range: %w", h.Peer, types.ErrMalformedPacket)
	}
	copy(h.Session[:], datagram[5:HeaderSize])
	return h, datagram[HeaderSize:], nil
}

// Control builds a datagram without body.
func Control(kind Kind, peer types.PlayerID, session types.SessionID) []byte {
	return AppendHeader(make([]byte, 0, HeaderSize), Header{Kind: kind, Peer: peer, Session: session})
}
