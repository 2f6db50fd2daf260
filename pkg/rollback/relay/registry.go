package relay

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ReneKroon/ttlcache"
	"github.com/jabolina/go-rollback/pkg/rollback/types"
)

// A session pairs the addresses of its two peers.
type session struct {
	id    types.SessionID
	peers [types.MaxPlayers]net.Addr
}

func (s *session) empty() bool {
	for _, addr := range s.peers {
		if addr != nil {
			return false
		}
	}
	return true
}

// Called when a session is torn down, with the address of each peer
// that must be told.
type teardown func(id types.SessionID, notify []peerAddr)

type peerAddr struct {
	peer types.PlayerID
	addr net.Addr
}

// Keeps the sessions and the liveness of each peer.
//
// The idle cache holds one entry per registered peer, refreshed by
// every datagram it sends. When an entry expires the whole session
// is torn down. Cache operations are never made while holding the
// registry lock.
type registry struct {
	mutex sync.Mutex

	sessions map[types.SessionID]*session

	idle *ttlcache.Cache

	allowCreate bool

	onTeardown teardown
}

func newRegistry(timeout time.Duration, allowCreate bool, onTeardown teardown) *registry {
	r := &registry{
		sessions:    make(map[types.SessionID]*session),
		idle:        ttlcache.NewCache(),
		allowCreate: allowCreate,
		onTeardown:  onTeardown,
	}
	r.idle.SetTTL(timeout)
	r.idle.SetExpirationCallback(r.expired)
	return r
}

func idleKey(id types.SessionID, peer types.PlayerID) string {
	return id.String() + "/" + strconv.Itoa(int(peer))
}

func parseIdleKey(key string) (types.SessionID, types.PlayerID, error) {
	parts := strings.SplitN(key, "/", 2)
	if len(parts) != 2 {
		return types.SessionID{}, 0, fmt.Errorf("invalid key %s", key)
	}
	id, err := types.ParseSessionID(parts[0])
	if err != nil {
		return types.SessionID{}, 0, err
	}
	peer, err := strconv.Atoi(parts[1])
	if err != nil {
		return types.SessionID{}, 0, err
	}
	return id, types.PlayerID(peer), nil
}

// Creates the session if it does not exist.
func (r *registry) open(id types.SessionID) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.sessions[id]; !ok {
		r.sessions[id] = &session{id: id}
	}
}

func (r *registry) accept(id types.SessionID, peer types.PlayerID, addr net.Addr) error {
	if peer >= types.MaxPlayers {
		return fmt.Errorf("peer %d: %w", peer, types.ErrSessionFull)
	}

	r.mutex.Lock()
	s, ok := r.sessions[id]
	if !ok {
		if !r.allowCreate {
			r.mutex.Unlock()
			return fmt.Errorf("session %s: %w", id, types.ErrUnknownSession)
		}
		s = &session{id: id}
		r.sessions[id] = s
	}
	if current := s.peers[peer]; current != nil && current.String() != addr.String() {
		r.mutex.Unlock()
		return fmt.Errorf("session %s peer %d already at %s: %w", id, peer, current, types.ErrSessionFull)
	}
	s.peers[peer] = addr
	r.mutex.Unlock()

	r.touch(id, peer, s)
	return nil
}

// Refreshes the idle entry of the peer.
func (r *registry) touch(id types.SessionID, peer types.PlayerID, s *session) {
	r.idle.Set(idleKey(id, peer), s)
}

// Verifies the sender and returns the address of the other peer.
// A nil address means the other peer did not join yet.
func (r *registry) route(id types.SessionID, peer types.PlayerID, from net.Addr) (net.Addr, error) {
	r.mutex.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mutex.Unlock()
		return nil, fmt.Errorf("session %s: %w", id, types.ErrUnknownSession)
	}
	if from != nil {
		if current := s.peers[peer]; current == nil || current.String() != from.String() {
			r.mutex.Unlock()
			return nil, fmt.Errorf("session %s peer %d not joined from %s: %w", id, peer, from, types.ErrUnknownSession)
		}
	}
	to := s.peers[peer.Other()]
	r.mutex.Unlock()

	if from != nil {
		r.touch(id, peer, s)
	}
	return to, nil
}

// Removes the session the peer belongs, returning who must be told.
func (r *registry) leave(id types.SessionID, peer types.PlayerID, from net.Addr) ([]peerAddr, error) {
	r.mutex.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mutex.Unlock()
		return nil, fmt.Errorf("session %s: %w", id, types.ErrUnknownSession)
	}
	if current := s.peers[peer]; current == nil || current.String() != from.String() {
		r.mutex.Unlock()
		return nil, fmt.Errorf("session %s peer %d not joined from %s: %w", id, peer, from, types.ErrUnknownSession)
	}
	notify := r.dropLocked(s, peer)
	r.mutex.Unlock()

	for p := range s.peers {
		r.idle.Remove(idleKey(id, types.PlayerID(p)))
	}
	return notify, nil
}

// Must be called holding the lock.
func (r *registry) dropLocked(s *session, peer types.PlayerID) []peerAddr {
	var notify []peerAddr
	for p, addr := range s.peers {
		if addr != nil && types.PlayerID(p) != peer {
			notify = append(notify, peerAddr{peer: types.PlayerID(p), addr: addr})
		}
	}
	delete(r.sessions, s.id)
	return notify
}

// Expiration callback of the idle cache. The entries of the other
// peers are left to expire by themselves and are ignored once the
// session they point to is gone.
func (r *registry) expired(key string, value interface{}) {
	id, peer, err := parseIdleKey(key)
	if err != nil {
		return
	}
	expected, _ := value.(*session)

	r.mutex.Lock()
	s, ok := r.sessions[id]
	if !ok || s != expected || s.peers[peer] == nil {
		r.mutex.Unlock()
		return
	}
	notify := r.dropLocked(s, peer)
	r.mutex.Unlock()

	if r.onTeardown != nil {
		r.onTeardown(id, notify)
	}
}

// How many sessions are registered.
func (r *registry) size() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.sessions)
}

func (r *registry) members(id types.SessionID) [types.MaxPlayers]net.Addr {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s.peers
	}
	return [types.MaxPlayers]net.Addr{}
}

func (r *registry) close() {
	r.idle.Close()
}
