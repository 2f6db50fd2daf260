package core

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/go-hclog"
	"github.com/jabolina/go-rollback/pkg/rollback/types"
	"github.com/wangjia184/sortedset"
)

// ChannelConfig bounds the input channel buffers.
type ChannelConfig struct {
	// The local player.
	Local types.PlayerID

	// Fixed size of every input payload.
	InputSize int

	// The most frames carried on a single packet.
	MaxPacketFrames int

	// The most local frames waiting for acknowledgement.
	MaxUnacked int
}

// InputChannel is the frame indexed transport of player inputs.
//
// Local inputs are kept in an ordered buffer until the peer
// acknowledges them, and every outgoing packet replays the whole
// buffer. Remote inputs are recorded once and never overwritten.
//
// The channel is not safe for concurrent use, it must only be
// touched by the session tick loop.
type InputChannel struct {
	config ChannelConfig

	log hclog.Logger

	// Local inputs not yet acknowledged, scored by frame.
	outgoing *sortedset.SortedSet

	// The last local frame pushed.
	localFrame types.FrameNumber

	// The AckWindow, highest local frame the peer confirmed.
	peerAck types.FrameNumber

	// Remote inputs received and not yet released.
	remote map[types.FrameNumber]types.InputPayload

	// Every remote frame up to this one was received.
	contiguous types.FrameNumber

	// Remote frames up to this one were consumed and dropped.
	released types.FrameNumber

	// Highest frame the peer reported to have produced.
	remoteFrame types.FrameNumber

	// Checksums reported by the peer and not yet verified.
	checksums []types.Checksum
}

// NewInputChannel creates an empty channel.
func NewInputChannel(config ChannelConfig, log hclog.Logger) *InputChannel {
	return &InputChannel{
		config:   config,
		log:      log,
		outgoing: sortedset.New(),
		remote:   make(map[types.FrameNumber]types.InputPayload),
	}
}

func frameKey(frame types.FrameNumber) string {
	return strconv.FormatUint(uint64(frame), 10)
}

// Push adds a local input to the outgoing buffer. Frames must be
// pushed in order, one at a time.
func (c *InputChannel) Push(frame types.FrameNumber, payload types.InputPayload) error {
	if frame != c.localFrame.Next() {
		return fmt.Errorf("pushed frame %d after %d: %w", frame, c.localFrame, types.ErrFrameOrder)
	}
	if len(payload) != c.config.InputSize {
		return fmt.Errorf("payload with %d bytes, expected %d: %w", len(payload), c.config.InputSize, types.ErrMalformedPacket)
	}
	if c.Full() {
		return fmt.Errorf("%d frames waiting since %d: %w", c.outgoing.GetCount(), c.peerAck, types.ErrWindowOverflow)
	}
	c.outgoing.AddOrUpdate(frameKey(frame), sortedset.SCORE(frame), types.FrameInput{
		Frame:   frame,
		Payload: payload.Clone(),
	})
	c.localFrame = frame
	return nil
}

// Full reports if the window has no room for another local frame.
// It drains as the peer acknowledges.
func (c *InputChannel) Full() bool {
	return c.config.MaxUnacked > 0 && c.outgoing.GetCount() >= c.config.MaxUnacked
}

// Outgoing builds the next packet to be sent to the peer.
// The window holds the oldest un-acknowledged frames first, so the
// peer can always close its gaps even when the window is truncated.
func (c *InputChannel) Outgoing() *types.InputPacket {
	limit := c.outgoing.GetCount()
	if c.config.MaxPacketFrames > 0 && limit > c.config.MaxPacketFrames {
		limit = c.config.MaxPacketFrames
	}
	packet := &types.InputPacket{
		SenderFrame: c.localFrame,
		AckFrame:    c.contiguous,
	}
	if limit == 0 {
		return packet
	}
	nodes := c.outgoing.GetByRankRange(1, limit, false)
	packet.Window = make([]types.FrameInput, 0, len(nodes))
	for _, node := range nodes {
		packet.Window = append(packet.Window, node.Value.(types.FrameInput))
	}
	return packet
}

// Receive applies a packet from the peer.
//
// Duplicated and out of order packets are accepted, applying the same
// packet twice has no effect. A frame that arrives again with a
// different payload is a protocol violation.
func (c *InputChannel) Receive(packet *types.InputPacket) error {
	for _, input := range packet.Window {
		if err := c.record(input); err != nil {
			return err
		}
	}
	for c.remote[c.contiguous.Next()] != nil {
		c.contiguous++
	}
	if packet.SenderFrame > c.remoteFrame {
		c.remoteFrame = packet.SenderFrame
	}
	if packet.AckFrame > c.peerAck {
		c.peerAck = packet.AckFrame
		c.prune()
	}
	if packet.Checksum != nil {
		c.checksums = append(c.checksums, *packet.Checksum)
	}
	return nil
}

func (c *InputChannel) record(input types.FrameInput) error {
	if input.Frame == 0 {
		return fmt.Errorf("input for frame zero: %w", types.ErrMalformedPacket)
	}
	if len(input.Payload) != c.config.InputSize {
		return fmt.Errorf("frame %d payload with %d bytes, expected %d: %w", input.Frame, len(input.Payload), c.config.InputSize, types.ErrMalformedPacket)
	}
	if input.Frame <= c.released {
		return nil
	}
	known, ok := c.remote[input.Frame]
	if !ok {
		c.remote[input.Frame] = input.Payload.Clone()
		return nil
	}
	if !known.Equal(input.Payload) {
		c.log.Error("conflicting remote input", "frame", input.Frame)
		return fmt.Errorf("frame %d: %w", input.Frame, types.ErrConflictingInput)
	}
	return nil
}

// Removes every outgoing frame below the AckWindow. The frame at
// the AckWindow itself is kept.
func (c *InputChannel) prune() {
	if c.peerAck <= 1 {
		return
	}
	removed := c.outgoing.GetByScoreRange(sortedset.SCORE(0), sortedset.SCORE(c.peerAck-1), nil)
	for _, node := range removed {
		c.outgoing.Remove(node.Key())
	}
	if len(removed) > 0 {
		c.log.Trace("pruned acknowledged inputs", "count", len(removed), "ack", c.peerAck)
	}
}

// Remote returns the remote input for the frame, if known.
func (c *InputChannel) Remote(frame types.FrameNumber) (types.InputPayload, bool) {
	payload, ok := c.remote[frame]
	return payload, ok
}

// Latest returns the most recent remote input at or before the frame,
// used to fill frames not received yet.
func (c *InputChannel) Latest(frame types.FrameNumber) (types.InputPayload, bool) {
	for f := frame; f > c.released; f-- {
		if payload, ok := c.remote[f]; ok {
			return payload, true
		}
	}
	return nil, false
}

// Release drops every remote input up to the frame. Those frames are
// consumed by the verified simulation and are ignored if they arrive
// again.
func (c *InputChannel) Release(frame types.FrameNumber) {
	if frame > c.contiguous {
		frame = c.contiguous
	}
	for f := c.released + 1; f <= frame; f++ {
		delete(c.remote, f)
	}
	if frame > c.released {
		c.released = frame
	}
}

// TakeChecksums returns and clears the checksums reported by the peer.
func (c *InputChannel) TakeChecksums() []types.Checksum {
	out := c.checksums
	c.checksums = nil
	return out
}

// Pending returns the frames waiting for acknowledgement, in order.
func (c *InputChannel) Pending() []types.FrameNumber {
	if c.outgoing.GetCount() == 0 {
		return nil
	}
	nodes := c.outgoing.GetByRankRange(1, -1, false)
	frames := make([]types.FrameNumber, 0, len(nodes))
	for _, node := range nodes {
		frames = append(frames, types.FrameNumber(node.Score()))
	}
	return frames
}

// Contiguous returns the highest remote frame with no gap before it.
func (c *InputChannel) Contiguous() types.FrameNumber {
	return c.contiguous
}

// PeerAck returns the current AckWindow.
func (c *InputChannel) PeerAck() types.FrameNumber {
	return c.peerAck
}

// RemoteFrame returns the highest frame the peer reported.
func (c *InputChannel) RemoteFrame() types.FrameNumber {
	return c.remoteFrame
}

// LocalFrame returns the last local frame pushed.
func (c *InputChannel) LocalFrame() types.FrameNumber {
	return c.localFrame
}
