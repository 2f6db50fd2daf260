package core

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/jabolina/go-rollback/pkg/rollback/memory"
	"github.com/jabolina/go-rollback/pkg/rollback/types"
	"github.com/jabolina/go-rollback/pkg/rollback/wire"
)

// DriverConfig holds everything a driver needs for a session.
type DriverConfig struct {
	// Input channel bounds, also holds the local player.
	Channel ChannelConfig

	// The deterministic step of the game.
	Step types.StepFunc

	// State at frame zero, equal on both peers.
	Initial types.SimulationState

	// How many frames the predicted simulation can run ahead of the
	// verified one. Zero means no limit, then the arena capacity is
	// the only bound.
	MaxPrediction int

	// Size in bytes of the snapshot arena.
	ArenaCapacity int

	// Resimulate every frame after a verified advance, even when the
	// provisional inputs were right.
	AlwaysResimulate bool

	// Exchange and compare checksums of the verified state.
	DesyncDetection bool

	// How many verified checksums are retained.
	ChecksumHistory int
}

// Stats are counters of a driver lifetime.
type Stats struct {
	Rollbacks       uint64
	Resimulated     uint64
	VerifiedStalls  uint64
	PredictedStalls uint64
	AutoFilled      uint64
	WindowStalls    uint64
	PacketsReceived uint64
	PacketsDropped  uint64
}

// Driver owns the verified and the predicted simulations of a
// session and reconciles them on every tick.
//
// The verified instance advances only with complete inputs. The
// predicted instance advances every tick with the best inputs
// available, and a snapshot of its state is taken before each step.
// When the verified instance confirms inputs that differ from the
// ones the predicted instance used, the predicted state is restored
// from the last common snapshot and resimulated up to its frame.
//
// The driver is not safe for concurrent use.
type Driver struct {
	config DriverConfig

	log hclog.Logger

	channel   *InputChannel
	timeline  *timeline
	snapshots *SnapshotStack
	checksums *checksumLog

	verified  *Instance
	predicted *Instance

	// Inputs the predicted instance used for each frame after the
	// verified frame.
	provisional map[types.FrameNumber]types.InputSet

	stats Stats

	// The unrecoverable error that terminated the session.
	failure error
}

// NewDriver creates the driver with both instances at frame zero.
func NewDriver(config DriverConfig, log hclog.Logger) (*Driver, error) {
	if config.Step == nil {
		return nil, errors.New("step function is required")
	}
	if config.Channel.InputSize <= 0 {
		return nil, fmt.Errorf("invalid input size %d", config.Channel.InputSize)
	}
	if config.Channel.Local >= types.MaxPlayers {
		return nil, fmt.Errorf("invalid local player %d", config.Channel.Local)
	}
	if config.Channel.MaxUnacked == 1 {
		return nil, errors.New("a window of a single frame never drains, the acknowledged frame is kept")
	}
	if config.ArenaCapacity < len(config.Initial) {
		return nil, fmt.Errorf("arena with %d bytes cannot hold a state of %d: %w", config.ArenaCapacity, len(config.Initial), types.ErrOutOfCapacity)
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}

	channel := NewInputChannel(config.Channel, log.Named("channel"))
	line := newTimeline(config.Channel.Local, config.Channel.InputSize, channel)
	d := &Driver{
		config:      config,
		log:         log,
		channel:     channel,
		timeline:    line,
		snapshots:   NewSnapshotStack(memory.NewArena(config.ArenaCapacity)),
		checksums:   newChecksumLog(config.ChecksumHistory),
		verified:    NewInstance(types.Verified, StrictPolicy{timeline: line}, config.Step, config.Initial),
		predicted:   NewInstance(types.Predicted, HoldLastPolicy{timeline: line}, config.Step, config.Initial),
		provisional: make(map[types.FrameNumber]types.InputSet),
	}
	d.checksums.record(0, d.verified.State())
	return d, nil
}

func (d *Driver) fail(err error) error {
	if d.failure == nil {
		d.failure = err
		d.log.Error("session terminated", "error", err)
	}
	return d.failure
}

// Err returns the error that terminated the session, if any.
func (d *Driver) Err() error {
	return d.failure
}

// SubmitLocalInput records the local player input for a frame.
// Frames must be submitted in order, and may be ahead of the
// predicted frame to introduce an input delay. While the outgoing
// window is full it returns types.ErrWindowOverflow and the input
// must be submitted again once the peer acknowledges.
func (d *Driver) SubmitLocalInput(frame types.FrameNumber, payload types.InputPayload) error {
	if d.failure != nil {
		return d.failure
	}
	if err := d.channel.Push(frame, payload); err != nil {
		return err
	}
	d.timeline.submit(frame, payload)
	return nil
}

// OnRemotePacket applies the body of an input datagram.
// A malformed body is dropped and reported, a conflicting input
// terminates the session.
func (d *Driver) OnRemotePacket(body []byte) error {
	if d.failure != nil {
		return d.failure
	}
	packet, err := wire.DecodeInput(body)
	if err != nil {
		d.stats.PacketsDropped++
		return err
	}
	return d.ApplyPacket(packet)
}

// ApplyPacket applies an already decoded packet.
func (d *Driver) ApplyPacket(packet *types.InputPacket) error {
	if d.failure != nil {
		return d.failure
	}
	if err := d.channel.Receive(packet); err != nil {
		if errors.Is(err, types.ErrConflictingInput) {
			return d.fail(err)
		}
		d.stats.PacketsDropped++
		return err
	}
	d.stats.PacketsReceived++
	return nil
}

// Outgoing returns the packet to be sent to the peer after a tick.
func (d *Driver) Outgoing() *types.InputPacket {
	packet := d.channel.Outgoing()
	if d.config.DesyncDetection {
		packet.Checksum = d.checksums.current()
	}
	return packet
}

// Tick runs one step of the session:
//
//  1. advance the verified simulation through every complete frame;
//  2. compare the verified inputs with the provisional ones and
//     rollback the predicted simulation if they differ;
//  3. advance the predicted simulation one frame;
//  4. publish the predicted state.
func (d *Driver) Tick() (types.PublishedState, error) {
	if d.failure != nil {
		return types.PublishedState{}, d.failure
	}

	previous := d.verified.Frame()
	var confirmed []types.InputSet
	for {
		inputs, ok := d.verified.Advance()
		if !ok {
			break
		}
		d.checksums.record(d.verified.Frame(), d.verified.State())
		confirmed = append(confirmed, inputs)
	}
	if len(confirmed) > 0 {
		d.verified.setStatus(types.Advancing)
	} else {
		d.stats.VerifiedStalls++
	}

	if d.config.DesyncDetection {
		if err := d.checksums.verify(d.channel.TakeChecksums()); err != nil {
			return types.PublishedState{}, d.fail(err)
		}
	}

	resimulated, err := d.reconcile(previous, confirmed)
	if err != nil {
		return types.PublishedState{}, d.fail(err)
	}

	current := d.verified.Frame()
	if len(confirmed) > 0 {
		d.channel.Release(current)
		d.timeline.release(current, confirmed[len(confirmed)-1])
		d.snapshots.SetFloor(current)
		for frame := range d.provisional {
			if frame <= current {
				delete(d.provisional, frame)
			}
		}
	}

	if err = d.advancePredicted(); err != nil {
		return types.PublishedState{}, d.fail(err)
	}

	return types.PublishedState{
		Frame:          d.predicted.Frame(),
		State:          d.predicted.State().Clone(),
		VerifiedFrame:  current,
		VerifiedStatus: d.verified.Status(),
		RolledBack:     resimulated > 0,
		Resimulated:    resimulated,
	}, nil
}

// Finds the first confirmed frame the predicted instance simulated
// with different inputs. Returns zero if there is none.
func (d *Driver) divergence(previous types.FrameNumber, confirmed []types.InputSet) types.FrameNumber {
	limit := d.predicted.Frame()
	if d.config.AlwaysResimulate && len(confirmed) > 0 && previous < limit {
		return previous.Next()
	}
	for _, inputs := range confirmed {
		if inputs.Frame > limit {
			break
		}
		used, ok := d.provisional[inputs.Frame]
		if !ok || !used.Equal(inputs) {
			return inputs.Frame
		}
	}
	return 0
}

// Brings the predicted instance in line with the verified inputs.
// Returns how many frames were resimulated.
func (d *Driver) reconcile(previous types.FrameNumber, confirmed []types.InputSet) (int, error) {
	if len(confirmed) == 0 {
		return 0, nil
	}

	current := d.verified.Frame()
	head := d.predicted.Frame()
	if current >= head {
		diverged := d.divergence(previous, confirmed) != 0
		d.predicted.Restore(current, d.verified.State().Clone())
		d.predicted.branch = current
		d.snapshots.Clear()
		d.provisional = make(map[types.FrameNumber]types.InputSet)
		if diverged {
			d.stats.Rollbacks++
			d.log.Debug("verified overtook predicted", "verified", current, "predicted", head)
		}
		return 0, nil
	}

	from := d.divergence(previous, confirmed)
	d.predicted.branch = current
	if from == 0 {
		return 0, nil
	}

	origin := from - 1
	state, err := d.snapshots.Restore(origin)
	if err != nil {
		return 0, fmt.Errorf("restoring frame %d: %w", origin, err)
	}
	if err = d.snapshots.TruncateFrom(from); err != nil {
		return 0, err
	}
	d.predicted.Restore(origin, state)

	byFrame := make(map[types.FrameNumber]types.InputSet, len(confirmed))
	for _, inputs := range confirmed {
		byFrame[inputs.Frame] = inputs
	}
	for frame := from; frame <= head; frame++ {
		if frame > from {
			if err = d.snapshots.Push(d.predicted.Frame(), d.predicted.State()); err != nil {
				return 0, err
			}
		}
		inputs, ok := byFrame[frame]
		if !ok {
			inputs = d.timeline.provisional(frame)
		}
		d.provisional[frame] = inputs
		d.predicted.StepWith(inputs)
	}

	resimulated := int(head - origin)
	d.stats.Rollbacks++
	d.stats.Resimulated += uint64(resimulated)
	d.log.Debug("rollback", "origin", origin, "predicted", head, "verified", current, "frames", resimulated)
	return resimulated, nil
}

// Moves the predicted instance one frame forward, snapshotting its
// state first. Submits the hold-last input for the local player when
// the user did not provide one in time. The instance stalls when it
// is too far ahead of the verified one, or when its local input
// cannot be sent until the peer acknowledges older frames.
func (d *Driver) advancePredicted() error {
	head := d.predicted.Frame()
	if d.config.MaxPrediction > 0 && int(head-d.verified.Frame()) >= d.config.MaxPrediction {
		d.predicted.setStatus(types.Stalled)
		d.stats.PredictedStalls++
		return nil
	}

	next := head.Next()
	if d.channel.LocalFrame() < next {
		if d.channel.Full() {
			d.predicted.setStatus(types.Stalled)
			d.stats.WindowStalls++
			return nil
		}
		payload := d.timeline.latestLocal(next)
		if err := d.SubmitLocalInput(next, payload); err != nil {
			return err
		}
		d.stats.AutoFilled++
		d.log.Trace("local input filled", "frame", next)
	}

	if err := d.snapshots.Push(head, d.predicted.State()); err != nil {
		return fmt.Errorf("snapshot of frame %d: %w", head, err)
	}
	inputs, _ := d.predicted.Advance()
	d.provisional[inputs.Frame] = inputs
	return nil
}

// CurrentVerifiedFrame returns the frame of the verified simulation.
func (d *Driver) CurrentVerifiedFrame() types.FrameNumber {
	return d.verified.Frame()
}

// CurrentPredictedFrame returns the frame of the predicted simulation.
func (d *Driver) CurrentPredictedFrame() types.FrameNumber {
	return d.predicted.Frame()
}

// VerifiedState returns a copy of the verified state.
func (d *Driver) VerifiedState() types.SimulationState {
	return d.verified.State().Clone()
}

// Channel exposes the input channel of the session.
func (d *Driver) Channel() *InputChannel {
	return d.channel
}

// Stats returns a copy of the driver counters.
func (d *Driver) Stats() Stats {
	return d.stats
}

// Ready reports if the complete inputs of a frame are available,
// returning types.ErrMissingInput otherwise.
func (d *Driver) Ready(frame types.FrameNumber) error {
	if _, ok := d.timeline.verified(frame); !ok {
		return fmt.Errorf("frame %d: %w", frame, types.ErrMissingInput)
	}
	return nil
}
