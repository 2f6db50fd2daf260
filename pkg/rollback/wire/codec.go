package wire

import (
	"bytes"
	"fmt"
	"math"

	"github.com/hashicorp/go-msgpack/codec"
	"github.com/jabolina/go-rollback/pkg/rollback/types"
)

// Shared handle, the msgpack handle is safe for concurrent use once
// configured.
var handle = &codec.MsgpackHandle{}

// EncodeInput builds a complete input datagram, header and body.
func EncodeInput(peer types.PlayerID, session types.SessionID, packet *types.InputPacket) ([]byte, error) {
	out := AppendHeader(make([]byte, 0, 256), Header{Kind: Input, Peer: peer, Session: session})
	var body []byte
	if err := codec.NewEncoderBytes(&body, handle).Encode(packet); err != nil {
		return nil, fmt.Errorf("failed encoding input packet: %w", err)
	}
	out = append(out, body...)
	if len(out) > MaxDatagramSize {
		return nil, fmt.Errorf("input datagram with %d bytes exceeds %d: %w", len(out), MaxDatagramSize, types.ErrMalformedPacket)
	}
	return out, nil
}

// DecodeInput reads the body of an input datagram.
func DecodeInput(body []byte) (*types.InputPacket, error) {
	var packet types.InputPacket
	if err := codec.NewDecoderBytes(body, handle).Decode(&packet); err != nil {
		return nil, fmt.Errorf("failed decoding input packet %v: %w", err, types.ErrMalformedPacket)
	}
	return &packet, nil
}

// CheckWindow verifies that a packet carrying the given number of
// frames, each with a payload of inputSize bytes, fits a datagram.
// The packet is encoded with the widest values of every field.
func CheckWindow(frames, inputSize int) error {
	payload := types.InputPayload(bytes.Repeat([]byte{0xff}, inputSize))
	packet := &types.InputPacket{
		SenderFrame: math.MaxUint32,
		AckFrame:    math.MaxUint32,
		Window:      make([]types.FrameInput, frames),
		Checksum:    &types.Checksum{Frame: math.MaxUint32, Sum: math.MaxUint64},
	}
	for i := range packet.Window {
		packet.Window[i] = types.FrameInput{Frame: math.MaxUint32, Payload: payload}
	}
	_, err := EncodeInput(types.MaxPlayers-1, types.SessionID{}, packet)
	return err
}
