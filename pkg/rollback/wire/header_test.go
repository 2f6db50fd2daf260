package wire

import (
	"errors"
	"testing"

	"github.com/jabolina/go-rollback/pkg/rollback/types"
)

func Test_ShouldParseControlDatagram(t *testing.T) {
	session := types.NewSessionID()
	datagram := Control(Join, 1, session)
	if len(datagram) != HeaderSize {
		t.Fatalf("expected %d bytes, found %d", HeaderSize, len(datagram))
	}

	header, body, err := ParseHeader(datagram)
	if err != nil {
		t.Fatalf("failed parsing. %v", err)
	}
	if header.Kind != Join || header.Peer != 1 || header.Session != session {
		t.Errorf("unexpected header %#v", header)
	}
	if len(body) != 0 {
		t.Errorf("expected empty body, found %d bytes", len(body))
	}
}

func Test_ShouldRejectMalformedHeaders(t *testing.T) {
	valid := Control(Input, 0, types.NewSessionID())
	corrupt := func(at int, value byte) []byte {
		data := append([]byte(nil), valid...)
		data[at] = value
		return data
	}

	cases := map[string][]byte{
		"short":   valid[:HeaderSize-1],
		"magic":   corrupt(0, 0x00),
		"version": corrupt(2, Version+1),
		"kind":    corrupt(3, 0),
		"unknown": corrupt(3, byte(Closed)+1),
		"peer":    corrupt(4, types.MaxPlayers),
	}
	for name, datagram := range cases {
		if _, _, err := ParseHeader(datagram); !errors.Is(err, types.ErrMalformedPacket) {
			t.Errorf("%s: expected malformed packet, found %v", name, err)
		}
	}
}

func Test_ShouldCarryInputPacketBody(t *testing.T) {
	session := types.NewSessionID()
	packet := &types.InputPacket{
		SenderFrame: 7,
		AckFrame:    3,
		Window: []types.FrameInput{
			{Frame: 5, Payload: types.InputPayload{0x01}},
			{Frame: 6, Payload: types.InputPayload{0x02}},
			{Frame: 7, Payload: types.InputPayload{0x04}},
		},
		Checksum: &types.Checksum{Frame: 3, Sum: 0xdeadbeef},
	}

	datagram, err := EncodeInput(1, session, packet)
	if err != nil {
		t.Fatalf("failed encoding. %v", err)
	}
	header, body, err := ParseHeader(datagram)
	if err != nil {
		t.Fatalf("failed parsing. %v", err)
	}
	if header.Kind != Input || header.Peer != 1 || header.Session != session {
		t.Errorf("unexpected header %#v", header)
	}

	decoded, err := DecodeInput(body)
	if err != nil {
		t.Fatalf("failed decoding. %v", err)
	}
	if decoded.SenderFrame != 7 || decoded.AckFrame != 3 || len(decoded.Window) != 3 {
		t.Fatalf("unexpected packet %#v", decoded)
	}
	for i, input := range decoded.Window {
		if input.Frame != packet.Window[i].Frame || !input.Payload.Equal(packet.Window[i].Payload) {
			t.Errorf("window entry %d differs: %#v", i, input)
		}
	}
	if decoded.Checksum == nil || *decoded.Checksum != *packet.Checksum {
		t.Errorf("checksum lost %#v", decoded.Checksum)
	}
}

func Test_ShouldRejectGarbageBody(t *testing.T) {
	if _, err := DecodeInput([]byte{0x85}); !errors.Is(err, types.ErrMalformedPacket) {
		t.Errorf("expected malformed packet, found %v", err)
	}
}

func Test_ShouldRejectOversizedPacket(t *testing.T) {
	packet := &types.InputPacket{SenderFrame: 1000}
	for f := types.FrameNumber(1); f <= 1000; f++ {
		packet.Window = append(packet.Window, types.FrameInput{Frame: f, Payload: make(types.InputPayload, 8)})
	}
	if _, err := EncodeInput(0, types.NewSessionID(), packet); !errors.Is(err, types.ErrMalformedPacket) {
		t.Errorf("expected oversized packet to fail, found %v", err)
	}
}

func Test_ShouldCheckWindowFitsDatagram(t *testing.T) {
	if err := CheckWindow(32, 1); err != nil {
		t.Errorf("small inputs should fit. %v", err)
	}
	if err := CheckWindow(8, 64); err != nil {
		t.Errorf("short window should fit. %v", err)
	}
	if err := CheckWindow(32, 64); !errors.Is(err, types.ErrMalformedPacket) {
		t.Errorf("expected window to exceed the datagram, found %v", err)
	}
}
