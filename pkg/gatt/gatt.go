// Package gatt provides GATT client handles on top of a ble.Adapter.
//
// A Connector keeps at most one link per remote address. Any number of Client handles can be
// attached to the same link, mirroring how several BluetoothGatt objects share one ACL link on
// Android. Link state changes and discovery results are reported through each handle's Callback.
package gatt

import (
	"time"

	"github.com/blesnip/leaudio-snippet/pkg/connector/ble"
)

// Status codes reported to callbacks.
const (
	StatusSuccess = 0
	StatusFailure = 257
)

// Connection states reported to callbacks.
const (
	StateDisconnected  = 0
	StateConnecting    = 1
	StateConnected     = 2
	StateDisconnecting = 3
)

const (
	DefaultConnectTimeout   = 30 * time.Second
	DefaultRetryInterval    = time.Second
	DefaultDiscoveryTimeout = 30 * time.Second
)

// Callback receives asynchronous results for a Client. Calls for the same Client are never made
// concurrently.
type Callback interface {
	OnConnectionStateChange(client *Client, status int, newState int)
	OnServicesDiscovered(client *Client, status int)
}

// ServiceList is a convenience for callbacks that want to inspect discovery results.
type ServiceList []ble.Service

// Find returns the service with the given canonical UUID.
func (l ServiceList) Find(uuid string) (ble.Service, bool) {
	for _, s := range l {
		if s.UUID == uuid {
			return s, true
		}
	}
	return ble.Service{}, false
}
