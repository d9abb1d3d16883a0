// Package functions discovers handler modules under a directory and serves
// each one as an authenticated POST route.
package functions

import (
	"context"
	"net/http"

	"github.com/upb/functions-gateway/auth"
	"go.uber.org/zap"
)

// Handler is a discovered function. Invoke is called once per verified
// request; a non-nil result is sent to the caller unless the handler already
// wrote a response through the sink.
type Handler interface {
	Invoke(inv *Invocation) (any, error)
}

// HandlerFunc adapts an ordinary function to the Handler interface
type HandlerFunc func(inv *Invocation) (any, error)

// Invoke calls f(inv)
func (f HandlerFunc) Invoke(inv *Invocation) (any, error) {
	return f(inv)
}

// Invocation bundles everything a handler sees for one request
type Invocation struct {
	// Request is the inbound HTTP request
	Request *http.Request

	// Response lets the handler set status, headers and body directly
	Response *ResponseSink

	// Claims are the verified token claims. Never nil.
	Claims auth.Claims

	// Route is the mounted route, e.g. /functions/ping
	Route string

	// ID uniquely identifies this invocation
	ID string

	// Logger is scoped to the route and invocation id
	Logger *zap.Logger
}

// Context returns the request context
func (inv *Invocation) Context() context.Context {
	return inv.Request.Context()
}
