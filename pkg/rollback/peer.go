package rollback

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jabolina/go-rollback/pkg/rollback/core"
	"github.com/jabolina/go-rollback/pkg/rollback/types"
	"github.com/jabolina/go-rollback/pkg/rollback/wire"
)

// InputSource produces the local input for a frame, given the last
// published state. Returning nil lets the driver hold the last input.
type InputSource func(frame types.FrameNumber, last types.PublishedState) types.InputPayload

// Stats of a peer lifetime.
type Stats struct {
	core.Stats

	PacketsSent uint64
	Ticks       uint64
}

// Peer is a player on a session. It owns the driver and the
// transport, and every call must come from the same goroutine, the
// only concurrency is the transport receiving in the background.
type Peer struct {
	config *Config

	log hclog.Logger

	driver *core.Driver

	transport core.Transport

	consumer <-chan []byte

	stats Stats

	failure error
}

// NewPeer creates the peer of a session over the given transport.
func NewPeer(config *Config, transport core.Transport) (*Peer, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	log := config.Logger.Named("peer").With("session", config.Session.String(), "player", config.Local)
	driver, err := core.NewDriver(config.driverConfig(), log.Named("driver"))
	if err != nil {
		return nil, err
	}
	return &Peer{
		config:    config,
		log:       log,
		driver:    driver,
		transport: transport,
		consumer:  transport.Listen(),
	}, nil
}

func (p *Peer) fail(err error) error {
	if p.failure == nil {
		p.failure = err
		p.log.Error("session terminated", "error", err)
	}
	return p.failure
}

// Err returns the error that terminated the session.
func (p *Peer) Err() error {
	if p.failure != nil {
		return p.failure
	}
	return p.driver.Err()
}

// SubmitLocalInput records the local input for a frame.
func (p *Peer) SubmitLocalInput(frame types.FrameNumber, payload types.InputPayload) error {
	if p.failure != nil {
		return p.failure
	}
	return p.driver.SubmitLocalInput(frame, payload)
}

// Applies every datagram received since the last tick.
func (p *Peer) drain() error {
	for {
		select {
		case body, ok := <-p.consumer:
			if !ok {
				return types.ErrConnectionClosed
			}
			if err := p.driver.OnRemotePacket(body); err != nil {
				if fatal := p.driver.Err(); fatal != nil {
					return fatal
				}
				p.log.Debug("dropping input packet", "error", err)
			}
		default:
			return nil
		}
	}
}

// Tick applies the received packets, advances the simulations and
// sends the local inputs to the other peer.
func (p *Peer) Tick() (types.PublishedState, error) {
	if p.failure != nil {
		return types.PublishedState{}, p.failure
	}
	if err := p.drain(); err != nil {
		return types.PublishedState{}, p.fail(err)
	}

	state, err := p.driver.Tick()
	if err != nil {
		return types.PublishedState{}, p.fail(err)
	}
	p.stats.Ticks++

	datagram, err := wire.EncodeInput(p.config.Local, p.config.Session, p.driver.Outgoing())
	if err != nil {
		return state, p.fail(err)
	}
	if err = p.transport.Send(datagram); err != nil {
		if errors.Is(err, types.ErrConnectionClosed) {
			return state, p.fail(err)
		}
		p.log.Warn("failed sending input packet", "error", err)
	} else {
		p.stats.PacketsSent++
	}
	return state, nil
}

// Run ticks at the configured interval until the context is done or
// the session fails. The source is asked for the input of the next
// frame before each tick, unless the outgoing window is waiting for
// acknowledgements, and every published state is given to the sink.
func (p *Peer) Run(ctx context.Context, source InputSource, sink func(types.PublishedState)) error {
	ticker := time.NewTicker(p.config.FrameInterval)
	defer ticker.Stop()

	var last types.PublishedState
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		next := p.driver.CurrentPredictedFrame().Next()
		if source != nil && !p.driver.Channel().Full() && p.driver.Channel().LocalFrame() < next {
			if payload := source(next, last); payload != nil {
				if err := p.SubmitLocalInput(next, payload); err != nil {
					return err
				}
			}
		}

		state, err := p.Tick()
		if err != nil {
			return err
		}
		last = state
		if sink != nil {
			sink(state)
		}
	}
}

// CurrentVerifiedFrame returns the frame of the verified simulation.
func (p *Peer) CurrentVerifiedFrame() types.FrameNumber {
	return p.driver.CurrentVerifiedFrame()
}

// CurrentPredictedFrame returns the frame of the predicted simulation.
func (p *Peer) CurrentPredictedFrame() types.FrameNumber {
	return p.driver.CurrentPredictedFrame()
}

// VerifiedState returns a copy of the verified state.
func (p *Peer) VerifiedState() types.SimulationState {
	return p.driver.VerifiedState()
}

// Stats returns a copy of the peer counters.
func (p *Peer) Stats() Stats {
	s := p.stats
	s.Stats = p.driver.Stats()
	return s
}

// Close leaves the session.
func (p *Peer) Close() error {
	return p.transport.Close()
}
