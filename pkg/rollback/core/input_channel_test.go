package core

import (
	"errors"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/jabolina/go-rollback/pkg/rollback/types"
)

func newTestChannel(maxPacket, maxUnacked int) *InputChannel {
	return NewInputChannel(ChannelConfig{
		Local:           0,
		InputSize:       1,
		MaxPacketFrames: maxPacket,
		MaxUnacked:      maxUnacked,
	}, hclog.NewNullLogger())
}

func pushFrames(t *testing.T, c *InputChannel, from, to types.FrameNumber) {
	t.Helper()
	for f := from; f <= to; f++ {
		if err := c.Push(f, types.InputPayload{byte(f)}); err != nil {
			t.Fatalf("failed pushing frame %d. %v", f, err)
		}
	}
}

func Test_ShouldPruneOnlyFramesBelowAck(t *testing.T) {
	c := newTestChannel(0, 0)
	pushFrames(t, c, 1, 10)

	if err := c.Receive(&types.InputPacket{AckFrame: 6}); err != nil {
		t.Fatalf("failed receiving. %v", err)
	}
	pending := c.Pending()
	if len(pending) != 5 {
		t.Fatalf("expected 5 pending frames, found %v", pending)
	}
	for i, frame := range pending {
		if frame != types.FrameNumber(6+i) {
			t.Errorf("expected frame %d at %d, found %d", 6+i, i, frame)
		}
	}

	// An older ack never moves the window back.
	if err := c.Receive(&types.InputPacket{AckFrame: 2}); err != nil {
		t.Fatalf("failed receiving. %v", err)
	}
	if c.PeerAck() != 6 {
		t.Errorf("ack window moved back to %d", c.PeerAck())
	}
	if len(c.Pending()) != 5 {
		t.Errorf("stale ack changed the buffer %v", c.Pending())
	}
}

func Test_ShouldSendOldestFramesFirst(t *testing.T) {
	c := newTestChannel(4, 0)
	pushFrames(t, c, 1, 10)

	packet := c.Outgoing()
	if packet.SenderFrame != 10 {
		t.Errorf("expected sender frame 10, found %d", packet.SenderFrame)
	}
	if len(packet.Window) != 4 {
		t.Fatalf("expected window of 4, found %d", len(packet.Window))
	}
	for i, input := range packet.Window {
		if input.Frame != types.FrameNumber(i+1) || input.Payload[0] != byte(i+1) {
			t.Errorf("unexpected entry %d: %#v", i, input)
		}
	}

	// Frames stay on the buffer until acknowledged.
	again := c.Outgoing()
	if len(again.Window) != 4 || again.Window[0].Frame != 1 {
		t.Errorf("window changed without ack %#v", again.Window)
	}
}

func Test_ShouldBeIdempotentOnDuplicates(t *testing.T) {
	c := newTestChannel(0, 0)
	packet := &types.InputPacket{
		SenderFrame: 3,
		Window: []types.FrameInput{
			{Frame: 1, Payload: types.InputPayload{1}},
			{Frame: 2, Payload: types.InputPayload{2}},
			{Frame: 3, Payload: types.InputPayload{3}},
		},
	}
	for i := 0; i < 3; i++ {
		if err := c.Receive(packet); err != nil {
			t.Fatalf("failed receiving duplicate %d. %v", i, err)
		}
	}
	if c.Contiguous() != 3 {
		t.Errorf("expected contiguous 3, found %d", c.Contiguous())
	}
	for f := types.FrameNumber(1); f <= 3; f++ {
		payload, ok := c.Remote(f)
		if !ok || payload[0] != byte(f) {
			t.Errorf("frame %d wrong after duplicates: %v", f, payload)
		}
	}
}

func Test_ShouldAcceptOutOfOrderPackets(t *testing.T) {
	c := newTestChannel(0, 0)
	late := &types.InputPacket{SenderFrame: 2, Window: []types.FrameInput{
		{Frame: 1, Payload: types.InputPayload{1}},
		{Frame: 2, Payload: types.InputPayload{2}},
	}}
	early := &types.InputPacket{SenderFrame: 4, Window: []types.FrameInput{
		{Frame: 3, Payload: types.InputPayload{3}},
		{Frame: 4, Payload: types.InputPayload{4}},
	}}

	if err := c.Receive(early); err != nil {
		t.Fatalf("failed receiving. %v", err)
	}
	if c.Contiguous() != 0 {
		t.Errorf("gap not detected, contiguous at %d", c.Contiguous())
	}
	if c.RemoteFrame() != 4 {
		t.Errorf("expected remote frame 4, found %d", c.RemoteFrame())
	}
	if err := c.Receive(late); err != nil {
		t.Fatalf("failed receiving. %v", err)
	}
	if c.Contiguous() != 4 {
		t.Errorf("expected contiguous 4, found %d", c.Contiguous())
	}
	if c.RemoteFrame() != 4 {
		t.Errorf("remote frame moved back to %d", c.RemoteFrame())
	}
	if c.Outgoing().AckFrame != 4 {
		t.Errorf("expected ack 4 on the next packet")
	}
}

func Test_ShouldRejectConflictingInput(t *testing.T) {
	c := newTestChannel(0, 0)
	first := &types.InputPacket{Window: []types.FrameInput{{Frame: 1, Payload: types.InputPayload{1}}}}
	second := &types.InputPacket{Window: []types.FrameInput{{Frame: 1, Payload: types.InputPayload{9}}}}
	if err := c.Receive(first); err != nil {
		t.Fatalf("failed receiving. %v", err)
	}
	if err := c.Receive(second); !errors.Is(err, types.ErrConflictingInput) {
		t.Errorf("expected conflicting input, found %v", err)
	}
	payload, _ := c.Remote(1)
	if payload[0] != 1 {
		t.Errorf("remote input overwritten with %v", payload)
	}
}

func Test_ShouldIgnoreReleasedFrames(t *testing.T) {
	c := newTestChannel(0, 0)
	packet := &types.InputPacket{Window: []types.FrameInput{
		{Frame: 1, Payload: types.InputPayload{1}},
		{Frame: 2, Payload: types.InputPayload{2}},
	}}
	if err := c.Receive(packet); err != nil {
		t.Fatalf("failed receiving. %v", err)
	}
	c.Release(2)
	if _, ok := c.Remote(1); ok {
		t.Errorf("released frame still stored")
	}
	if err := c.Receive(packet); err != nil {
		t.Errorf("released frames should be ignored, found %v", err)
	}
	if _, ok := c.Remote(2); ok {
		t.Errorf("released frame stored again")
	}
}

func Test_ShouldRejectMalformedInputs(t *testing.T) {
	c := newTestChannel(0, 0)
	zero := &types.InputPacket{Window: []types.FrameInput{{Frame: 0, Payload: types.InputPayload{1}}}}
	if err := c.Receive(zero); !errors.Is(err, types.ErrMalformedPacket) {
		t.Errorf("expected frame zero to be malformed, found %v", err)
	}
	size := &types.InputPacket{Window: []types.FrameInput{{Frame: 1, Payload: types.InputPayload{1, 2}}}}
	if err := c.Receive(size); !errors.Is(err, types.ErrMalformedPacket) {
		t.Errorf("expected wrong size to be malformed, found %v", err)
	}
}

func Test_ShouldRequireOrderedLocalFrames(t *testing.T) {
	c := newTestChannel(0, 0)
	if err := c.Push(2, types.InputPayload{2}); !errors.Is(err, types.ErrFrameOrder) {
		t.Errorf("expected frame order error, found %v", err)
	}
	pushFrames(t, c, 1, 1)
	if err := c.Push(1, types.InputPayload{1}); !errors.Is(err, types.ErrFrameOrder) {
		t.Errorf("expected frame order error on repeated frame, found %v", err)
	}
}

func Test_ShouldOverflowWhenPeerStopsAcknowledging(t *testing.T) {
	c := newTestChannel(0, 5)
	pushFrames(t, c, 1, 5)
	if !c.Full() {
		t.Errorf("window with 5 frames should be full")
	}
	if err := c.Push(6, types.InputPayload{6}); !errors.Is(err, types.ErrWindowOverflow) {
		t.Fatalf("expected window overflow, found %v", err)
	}

	if err := c.Receive(&types.InputPacket{AckFrame: 3}); err != nil {
		t.Fatalf("failed receiving. %v", err)
	}
	if c.Full() {
		t.Errorf("window should drain after ack")
	}
	if err := c.Push(6, types.InputPayload{6}); err != nil {
		t.Errorf("push should succeed after ack, found %v", err)
	}
}
