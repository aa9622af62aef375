// Package kit holds the small transport-agnostic plumbing shared by the
// conversion service surfaces: the Endpoint abstraction, middleware
// chaining, request-scoped context values, and the MCP tool adapter.
package kit

import "context"

// Endpoint is one request/response interaction, independent of transport.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behavior.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares left to right: the first argument is the
// outermost wrapper.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
