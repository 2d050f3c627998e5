// Package snippet hosts RPC snippets behind a Mobly-compatible TCP server.
//
// A snippet is a named set of methods. Methods marked Async receive a server-assigned callback ID
// as their first parameter and report results by posting events under that ID to the server's
// event cache; clients then poll the cache with the eventWaitAndGet and eventGetAll built-ins.
package snippet

import (
	"context"
)

// Handler executes an RPC. The returned value must be JSON-encodable.
type Handler func(ctx context.Context, params Params) (interface{}, error)

// Method describes one RPC.
type Method struct {
	Name        string
	Description string
	// Async methods receive a callback ID as parameter 0. The ID is returned to the client
	// alongside the result.
	Async   bool
	Handler Handler
}

// Snippet is a set of RPCs loaded into a Server.
type Snippet interface {
	Rpcs() []Method
	// Shutdown releases resources held by the snippet. It is called once when the server closes.
	Shutdown()
}
