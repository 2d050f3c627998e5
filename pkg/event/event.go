// Package event queues asynchronous snippet events until the harness polls for them.
//
// An asynchronous RPC is bound to a callback ID. Every event it produces is posted under that
// ID together with an event name, and the harness later retrieves events by (callback ID, name)
// through the eventWaitAndGet and eventGetAll RPCs.
package event

import "time"

// Bundle is the key/value payload of an event. Values are strings, numbers, booleans, nested
// Bundles or slices of Bundles.
type Bundle map[string]interface{}

// Event is a single asynchronous notification.
type Event struct {
	CallbackID   string `json:"callbackId"`
	Name         string `json:"name"`
	CreationTime int64  `json:"time"` // Milliseconds since the Unix epoch.
	Data         Bundle `json:"data"`
}

// New creates an Event stamped with the current time.
func New(callbackID, name string) *Event {
	return &Event{
		CallbackID:   callbackID,
		Name:         name,
		CreationTime: time.Now().UnixMilli(),
		Data:         Bundle{},
	}
}
