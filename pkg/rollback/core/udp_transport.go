package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jabolina/go-rollback/pkg/rollback/helper"
	"github.com/jabolina/go-rollback/pkg/rollback/types"
	"github.com/jabolina/go-rollback/pkg/rollback/wire"
)

// UDPConfig holds the configuration of a peer link with the relay.
type UDPConfig struct {
	// Address of the relay server.
	Relay string

	// Session to join on the relay.
	Session types.SessionID

	// The local player.
	Peer types.PlayerID

	// Capacity of the hand over queue with the tick loop.
	QueueSize int

	// Interval between join attempts until the relay accepts.
	JoinInterval time.Duration

	// Deadline of each read, bounds how long closing takes.
	ReadTimeout time.Duration

	// Bounds the transport lifetime.
	Ctx context.Context
}

// UDPTransport is an instance of the Transport interface over a UDP
// socket connected to the relay. There is no reliability on this
// layer, lost input datagrams are recovered by the next ones since
// each one carries the whole unacknowledged window.
type UDPTransport struct {
	config UDPConfig

	conn *net.UDPConn

	log hclog.Logger

	// Channel to publish the received input bodies.
	producer chan []byte

	// Closed once the relay accepts the join.
	accepted chan struct{}

	// Transport context for bounding the lifetime.
	ctx context.Context

	// Used to close the transport.
	cancel context.CancelFunc

	invoker *helper.GroupInvoker

	// Inactive once Close was called.
	shutdown helper.Flag

	// Inactive once the relay closed the session.
	dropped helper.Flag
}

// NewUDPTransport connects to the relay and starts joining the
// session. Use Ready to wait for the relay confirmation.
func NewUDPTransport(config UDPConfig, log hclog.Logger) (*UDPTransport, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if config.Ctx == nil {
		config.Ctx = context.Background()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 64
	}
	if config.JoinInterval <= 0 {
		config.JoinInterval = 100 * time.Millisecond
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 50 * time.Millisecond
	}

	addr, err := net.ResolveUDPAddr("udp", config.Relay)
	if err != nil {
		return nil, fmt.Errorf("failed resolving relay %s: %w", config.Relay, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed connecting relay %s: %w", config.Relay, err)
	}

	ctx, cancel := context.WithCancel(config.Ctx)
	u := &UDPTransport{
		config:   config,
		conn:     conn,
		log:      log.With("session", config.Session.String(), "peer", config.Peer),
		producer: make(chan []byte, config.QueueSize),
		accepted: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		invoker:  helper.NewInvoker(),
	}
	if err = u.invoker.Spawn(u.poll); err != nil {
		cancel()
		conn.Close()
		return nil, err
	}
	if err = u.invoker.Spawn(u.join); err != nil {
		u.Close()
		return nil, err
	}
	return u, nil
}

// Ready returns a channel closed once the relay accepted the peer.
func (u *UDPTransport) Ready() <-chan struct{} {
	return u.accepted
}

// Keeps sending the join datagram until the relay accepts it.
func (u *UDPTransport) join() {
	datagram := wire.Control(wire.Join, u.config.Peer, u.config.Session)
	ticker := time.NewTicker(u.config.JoinInterval)
	defer ticker.Stop()
	for {
		if _, err := u.conn.Write(datagram); err != nil && u.shutdown.IsActive() {
			u.log.Warn("failed sending join", "error", err)
		}
		select {
		case <-u.ctx.Done():
			return
		case <-u.accepted:
			return
		case <-ticker.C:
		}
	}
}

// UDPTransport implements Transport interface.
func (u *UDPTransport) Send(datagram []byte) error {
	if u.shutdown.IsInactive() || u.dropped.IsInactive() {
		return types.ErrConnectionClosed
	}
	_, err := u.conn.Write(datagram)
	return err
}

// UDPTransport implements Transport interface.
func (u *UDPTransport) Listen() <-chan []byte {
	return u.producer
}

// UDPTransport implements Transport interface.
func (u *UDPTransport) Close() error {
	if !u.shutdown.Inactivate() {
		return nil
	}
	if u.dropped.IsActive() {
		if _, err := u.conn.Write(wire.Control(wire.Leave, u.config.Peer, u.config.Session)); err != nil {
			u.log.Debug("failed sending leave", "error", err)
		}
	}
	u.cancel()
	err := u.conn.Close()
	u.invoker.Stop()
	return err
}

// This method will keep polling until the transport context is
// cancelled or the relay closes the session. The received datagrams
// are parsed and the input bodies published to the listener.
func (u *UDPTransport) poll() {
	defer close(u.producer)
	buffer := make([]byte, wire.MaxDatagramSize)
	for {
		select {
		case <-u.ctx.Done():
			return
		default:
		}

		if err := u.conn.SetReadDeadline(time.Now().Add(u.config.ReadTimeout)); err != nil {
			u.log.Error("failed setting read deadline", "error", err)
			return
		}
		n, err := u.conn.Read(buffer)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if u.ctx.Err() == nil {
				u.log.Error("failed reading datagram", "error", err)
			}
			return
		}
		if !u.consume(buffer[:n]) {
			return
		}
	}
}

// Handles a single datagram. Returns `false` when the link is over.
func (u *UDPTransport) consume(datagram []byte) bool {
	header, body, err := wire.ParseHeader(datagram)
	if err != nil {
		u.log.Warn("dropping datagram", "error", err)
		return true
	}
	if header.Session != u.config.Session {
		u.log.Warn("dropping datagram of another session", "from", header.Session.String())
		return true
	}

	switch header.Kind {
	case wire.Accepted:
		select {
		case <-u.accepted:
		default:
			u.log.Debug("joined session")
			close(u.accepted)
		}
	case wire.Input:
		data := make([]byte, len(body))
		copy(data, body)
		select {
		case u.producer <- data:
		default:
			u.log.Warn("hand over queue full, dropping input datagram")
		}
	case wire.Closed:
		u.log.Info("session closed by relay")
		u.dropped.Inactivate()
		return false
	default:
		u.log.Warn("unexpected datagram", "kind", header.Kind.String())
	}
	return true
}
