package rconkit

// TransportHandler is a network front end that can be started and stopped by
// the host. Server is the WebSocket implementation.
type TransportHandler interface {
	// Start begins listening on port and returns once the listener is bound.
	// Calling Start while already listening does nothing.
	Start(port int) error

	// Stop closes every connection and blocks until the transport has fully
	// shut down. Calling Stop while not listening does nothing.
	Stop() error

	// Name returns the transport type, e.g. "websocket".
	Name() string
}

var _ TransportHandler = (*Server)(nil)
