package types

// Checksum of the verified state at a given frame.
// Opaque for the relay, used only for desync detection.
type Checksum struct {
	Frame FrameNumber
	Sum   uint64
}

// InputPacket is the body of every input datagram exchanged between
// peers. Each packet carries the whole window of inputs not yet
// acknowledged by the remote, so a lost packet is recovered by the
// next one and no retransmission timer is needed.
type InputPacket struct {
	// The highest local frame the sender produced input for.
	SenderFrame FrameNumber

	// The highest remote frame the sender has fully received, every
	// frame up to and including this one is known by the sender.
	AckFrame FrameNumber

	// Un-acknowledged inputs, ordered by frame.
	Window []FrameInput

	// Optional checksum of the sender latest verified state.
	Checksum *Checksum
}
