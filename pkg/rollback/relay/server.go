package relay

import (
	"context"
	"errors"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jabolina/go-rollback/pkg/rollback/helper"
	"github.com/jabolina/go-rollback/pkg/rollback/types"
	"github.com/jabolina/go-rollback/pkg/rollback/wire"
)

// Counters of the relay lifetime.
type Counters struct {
	Received  uint64
	Forwarded uint64
	Dropped   uint64
	Sessions  int
}

// Server is the relay between the two peers of each session.
//
// The relay only reads the routing header of each datagram. Input
// datagrams are forwarded unmodified to the other peer of the
// session, the relay never looks at frames, acks or checksums.
type Server struct {
	config *Config

	log hclog.Logger

	conn net.PacketConn

	registry *registry

	// Server context for bounding the read loop.
	ctx context.Context

	// Used to close the server.
	cancel context.CancelFunc

	invoker *helper.GroupInvoker

	closed helper.Flag

	received  atomic.Uint64
	forwarded atomic.Uint64
	dropped   atomic.Uint64
}

// NewServer binds the relay address and starts serving.
func NewServer(ctx context.Context, config *Config) (*Server, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	log := config.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}

	conn, err := net.ListenPacket("udp", config.Address)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Server{
		config:  config,
		log:     log,
		conn:    conn,
		ctx:     ctx,
		cancel:  cancel,
		invoker: helper.NewInvoker(),
	}
	s.registry = newRegistry(config.IdleTimeout, config.AllowCreate, s.teardown)
	if err = s.invoker.Spawn(s.poll); err != nil {
		s.Close()
		return nil, err
	}
	s.log.Info("relay listening", "address", conn.LocalAddr().String())
	return s, nil
}

// Addr returns the address the relay is bound.
func (s *Server) Addr() net.Addr {
	return s.conn.LocalAddr()
}

// Open creates an empty session, needed when the relay does not
// create sessions on join.
func (s *Server) Open(id types.SessionID) {
	s.registry.open(id)
}

// Accept registers the address of a peer in the session.
func (s *Server) Accept(id types.SessionID, peer types.PlayerID, addr net.Addr) error {
	return s.registry.accept(id, peer, addr)
}

// Forward sends the datagram unmodified to the other peer of the
// session. When the other peer did not join yet the datagram is
// dropped without error.
func (s *Server) Forward(id types.SessionID, peer types.PlayerID, datagram []byte) error {
	return s.forward(id, peer, nil, datagram)
}

func (s *Server) forward(id types.SessionID, peer types.PlayerID, from net.Addr, datagram []byte) error {
	to, err := s.registry.route(id, peer, from)
	if err != nil {
		return err
	}
	if to == nil {
		s.dropped.Add(1)
		return nil
	}
	if _, err = s.conn.WriteTo(datagram, to); err != nil {
		return err
	}
	s.forwarded.Add(1)
	return nil
}

// Counters returns a copy of the relay counters.
func (s *Server) Counters() Counters {
	return Counters{
		Received:  s.received.Load(),
		Forwarded: s.forwarded.Load(),
		Dropped:   s.dropped.Load(),
		Sessions:  s.registry.size(),
	}
}

// Close stops the relay and waits the read loop.
func (s *Server) Close() error {
	if !s.closed.Inactivate() {
		return nil
	}
	s.cancel()
	err := s.conn.Close()
	s.invoker.Stop()
	s.registry.close()
	return err
}

// This method will keep polling until the server context is done.
func (s *Server) poll() {
	buffer := make([]byte, wire.MaxDatagramSize)
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout)); err != nil {
			s.log.Error("failed setting read deadline", "error", err)
			return
		}
		n, addr, err := s.conn.ReadFrom(buffer)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if s.ctx.Err() == nil {
				s.log.Error("failed reading datagram", "error", err)
			}
			return
		}
		s.received.Add(1)
		if err = s.consume(buffer[:n], addr); err != nil {
			s.dropped.Add(1)
			s.log.Debug("dropping datagram", "from", addr.String(), "error", err)
		}
	}
}

// Handles a single datagram according to its kind.
func (s *Server) consume(datagram []byte, from net.Addr) error {
	header, _, err := wire.ParseHeader(datagram)
	if err != nil {
		return err
	}

	switch header.Kind {
	case wire.Join:
		if err = s.Accept(header.Session, header.Peer, from); err != nil {
			return err
		}
		s.log.Debug("peer joined", "session", header.Session.String(), "peer", header.Peer, "address", from.String())
		_, err = s.conn.WriteTo(wire.Control(wire.Accepted, header.Peer, header.Session), from)
		return err
	case wire.Input:
		return s.forward(header.Session, header.Peer, from, datagram)
	case wire.Leave:
		notify, err := s.registry.leave(header.Session, header.Peer, from)
		if err != nil {
			return err
		}
		s.log.Debug("peer left", "session", header.Session.String(), "peer", header.Peer)
		s.notifyClosed(header.Session, notify)
		return nil
	default:
		return errors.New("unexpected " + header.Kind.String() + " from peer")
	}
}

// Teardown callback of the registry, for expired peers.
func (s *Server) teardown(id types.SessionID, notify []peerAddr) {
	s.log.Info("session expired", "session", id.String())
	s.notifyClosed(id, notify)
}

func (s *Server) notifyClosed(id types.SessionID, notify []peerAddr) {
	if s.closed.IsInactive() {
		return
	}
	for _, p := range notify {
		if _, err := s.conn.WriteTo(wire.Control(wire.Closed, p.peer, id), p.addr); err != nil {
			s.log.Warn("failed notifying peer", "session", id.String(), "peer", p.peer, "error", err)
		}
	}
}
