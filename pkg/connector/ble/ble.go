// Package ble abstracts the Bluetooth LE stack used to open GATT client links.
//
// The goble and tinygo sub-packages provide Adapter implementations on top of
// github.com/go-ble/ble and tinygo.org/x/bluetooth respectively. Higher layers only depend on the
// interfaces and model types declared here.
package ble

import (
	"context"
	"errors"

	"github.com/blesnip/leaudio-snippet/pkg/protocol"
)

var (
	ErrAdapterInvalidID = protocol.NewError("the bluetooth adapter ID is invalid", false, false)
	ErrInvalidAddress   = errors.New("invalid bluetooth address")
	ErrNotConnected     = protocol.NewError("remote device not connected", false, false)
)

//go:generate mockgen -destination=../../../mocks/ble.go -package=mocks -mock_names=Adapter=BLEAdapter,Device=BLEDevice . Adapter,Device

// Adapter is a local Bluetooth controller able to open GATT client links.
type Adapter interface {
	// Connect dials the remote device and returns once the link is up. Connect makes a single
	// attempt; callers that want auto-connect semantics retry until their own deadline.
	Connect(ctx context.Context, address string) (Device, error)
	Close() error
}

// Device is an established GATT client link.
type Device interface {
	Address() string

	// DiscoverProfile enumerates every primary service together with its characteristics.
	DiscoverProfile(ctx context.Context) ([]Service, error)

	// Disconnected returns a channel that is closed when the link drops, whether or not Close was
	// called.
	Disconnected() <-chan struct{}

	// Close tears the link down. Repeated calls must be idempotent.
	Close() error
}

// Service is a discovered GATT service.
type Service struct {
	UUID            string
	Primary         bool
	Handle          uint16
	Characteristics []Characteristic
}

// Characteristic is a discovered GATT characteristic. Permissions are only known for local
// attributes, so client-side discovery leaves them empty.
type Characteristic struct {
	UUID        string
	Properties  Property
	Permissions Permission
	Handle      uint16
	Descriptors []string
}

// AdapterError is returned when the local controller cannot be brought up. Help describes what
// the operator should check (daemons, permissions, container mounts).
type AdapterError struct {
	Err  error
	Help string
}

func (e *AdapterError) Error() string {
	return e.Err.Error()
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// AdapterErrorHelpMessage returns an operator-facing explanation of err.
func AdapterErrorHelpMessage(err error) string {
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) && adapterErr.Help != "" {
		return adapterErr.Help
	}
	return err.Error()
}
