package middleware

import "net"

// ConnHandler is the connection-level analogue of http.Handler for this
// proxy's raw TCP transport: there is no *http.Request/ResponseWriter
// pair on the hot path, only the accepted socket itself.
type ConnHandler func(net.Conn)

// Middleware defines the interface for connection middleware components.
// This interface implements the decorator pattern for connection
// processing, the same shape as http.Handler-wrapping middleware but
// retargeted at ConnHandler.
type Middleware interface {
	// Wrap decorates a ConnHandler with additional functionality.
	// Returns a new handler that executes middleware logic before/after
	// the wrapped handler, implementing chain of responsibility.
	Wrap(next ConnHandler) ConnHandler
}
