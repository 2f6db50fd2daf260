package core

import (
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/jabolina/go-rollback/pkg/rollback/helper"
	"github.com/jabolina/go-rollback/pkg/rollback/types"
	"github.com/jabolina/go-rollback/pkg/rollback/wire"
)

// NetworkConditions describes how the simulated network misbehaves.
// Delays are measured in calls to SimulatedNetwork.Step.
type NetworkConditions struct {
	// Probability in [0, 1] of dropping a datagram.
	Loss float64

	// Probability in [0, 1] of delivering a datagram twice.
	Duplicate float64

	// Bounds of the delivery delay, picked uniformly.
	MinDelay int
	MaxDelay int
}

type delayed struct {
	due  uint64
	seq  uint64
	to   types.PlayerID
	body []byte
}

// SimulatedNetwork stands in for the relay and the UDP sockets of a
// session, so two drivers can run in the same process with a seeded
// and reproducible loss, duplication, delay and reordering.
type SimulatedNetwork struct {
	mutex sync.Mutex

	conditions NetworkConditions

	rng *rand.Rand

	log hclog.Logger

	now uint64
	seq uint64

	queue []delayed

	links [types.MaxPlayers]*simulatedLink

	delivered uint64
	dropped   uint64
}

// NewSimulatedNetwork creates the network of a session. The same seed
// and the same sequence of calls produce the same deliveries.
func NewSimulatedNetwork(seed uint64, conditions NetworkConditions, log hclog.Logger) *SimulatedNetwork {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if conditions.MaxDelay < conditions.MinDelay {
		conditions.MaxDelay = conditions.MinDelay
	}
	n := &SimulatedNetwork{
		conditions: conditions,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		log:        log,
	}
	for i := range n.links {
		n.links[i] = &simulatedLink{
			network:  n,
			peer:     types.PlayerID(i),
			producer: make(chan []byte, 1024),
		}
	}
	return n
}

// Transport returns the endpoint of the given peer.
func (n *SimulatedNetwork) Transport(peer types.PlayerID) Transport {
	return n.links[peer]
}

// SetConditions changes the network behavior for the next datagrams.
func (n *SimulatedNetwork) SetConditions(conditions NetworkConditions) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	if conditions.MaxDelay < conditions.MinDelay {
		conditions.MaxDelay = conditions.MinDelay
	}
	n.conditions = conditions
}

// Step moves the network clock one unit and delivers every datagram
// due until now. Returns how many were delivered.
func (n *SimulatedNetwork) Step() int {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	n.now++
	slices.SortStableFunc(n.queue, func(a, b delayed) int {
		if a.due != b.due {
			if a.due < b.due {
				return -1
			}
			return 1
		}
		if a.seq < b.seq {
			return -1
		}
		return 1
	})

	count := 0
	for len(n.queue) > 0 && n.queue[0].due <= n.now {
		message := n.queue[0]
		n.queue = n.queue[1:]
		if n.links[message.to].deliver(message.body) {
			count++
			n.delivered++
		} else {
			n.dropped++
		}
	}
	return count
}

// Disconnect drops the link of a peer, as if the relay expired it.
func (n *SimulatedNetwork) Disconnect(peer types.PlayerID) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.links[peer].shutdown()
}

// Counters of delivered and dropped datagrams.
func (n *SimulatedNetwork) Counters() (delivered, dropped uint64) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return n.delivered, n.dropped
}

func (n *SimulatedNetwork) delay() uint64 {
	spread := n.conditions.MaxDelay - n.conditions.MinDelay
	delay := n.conditions.MinDelay
	if spread > 0 {
		delay += n.rng.IntN(spread + 1)
	}
	return uint64(delay)
}

// Routes a datagram the way the relay does.
func (n *SimulatedNetwork) route(from types.PlayerID, datagram []byte) error {
	header, body, err := wire.ParseHeader(datagram)
	if err != nil {
		return err
	}

	n.mutex.Lock()
	defer n.mutex.Unlock()

	switch header.Kind {
	case wire.Input:
	case wire.Leave:
		n.links[from].shutdown()
		n.links[from.Other()].shutdown()
		return nil
	default:
		return nil
	}

	copies := 1
	if n.rng.Float64() < n.conditions.Duplicate {
		copies++
	}
	for i := 0; i < copies; i++ {
		if n.rng.Float64() < n.conditions.Loss {
			n.dropped++
			n.log.Trace("datagram lost", "from", from)
			continue
		}
		data := make([]byte, len(body))
		copy(data, body)
		n.seq++
		n.queue = append(n.queue, delayed{
			due:  n.now + n.delay(),
			seq:  n.seq,
			to:   from.Other(),
			body: data,
		})
	}
	return nil
}

// Endpoint of a single peer on the simulated network.
type simulatedLink struct {
	network  *SimulatedNetwork
	peer     types.PlayerID
	producer chan []byte
	closed   helper.Flag
}

// Must be called holding the network lock.
func (l *simulatedLink) deliver(body []byte) bool {
	if l.closed.IsInactive() {
		return false
	}
	select {
	case l.producer <- body:
		return true
	default:
		return false
	}
}

// Must be called holding the network lock.
func (l *simulatedLink) shutdown() {
	if l.closed.Inactivate() {
		close(l.producer)
	}
}

// simulatedLink implements Transport interface.
func (l *simulatedLink) Send(datagram []byte) error {
	if l.closed.IsInactive() {
		return types.ErrConnectionClosed
	}
	return l.network.route(l.peer, datagram)
}

// simulatedLink implements Transport interface.
func (l *simulatedLink) Listen() <-chan []byte {
	return l.producer
}

// simulatedLink implements Transport interface.
func (l *simulatedLink) Close() error {
	if l.closed.IsInactive() {
		return nil
	}
	return l.network.route(l.peer, wire.Control(wire.Leave, l.peer, types.SessionID{}))
}
