package core

// Transport carries datagrams between a peer and the relay.
//
// The transport handles the control datagrams of the session, such
// as joining the relay or being told the session was closed, and only
// hands the bodies of input datagrams to the session. Receiving runs
// on its own goroutine and the bodies are handed over a bounded
// channel, so the tick loop never blocks on the network.
type Transport interface {
	// Send a complete datagram. Delivery is not guaranteed.
	Send(datagram []byte) error

	// Listen returns the channel with the bodies of the received
	// input datagrams. The channel is closed when the link with the
	// peer is dropped or the transport is closed.
	Listen() <-chan []byte

	// Close leaves the session and releases the transport.
	Close() error
}
