package goble

import (
	"context"
	"fmt"
	"sync"

	goble "github.com/go-ble/ble"

	"github.com/blesnip/leaudio-snippet/internal/log"
	"github.com/blesnip/leaudio-snippet/pkg/connector/ble"
)

// NewAdapter brings up the local controller identified by id ("" for the first available one).
func NewAdapter(id string) (ble.Adapter, error) {
	device, err := newDevice(id)
	if err != nil {
		if help := adapterHelp(err); help != "" {
			return nil, &ble.AdapterError{Err: err, Help: help}
		}
		return nil, fmt.Errorf("ble: failed to enable device: %w", err)
	}
	log.Debug("Created go-ble adapter")

	return &adapter{
		device: device,
	}, nil
}

type adapter struct {
	// Multiple linux.NewDevice() calls on the same HCI socket lead to failures, so one
	// device is shared by every link this adapter opens.
	mu     sync.Mutex
	device goble.Device
}

func (s *adapter) Connect(ctx context.Context, address string) (ble.Device, error) {
	s.mu.Lock()
	device := s.device
	s.mu.Unlock()
	if device == nil {
		return nil, ble.ErrNotConnected
	}

	log.Debug("Dialing %s...", address)
	client, err := device.Dial(ctx, goble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("ble: failed to dial %s: %s", address, err)
	}
	log.Info("Connected to %s", client.Addr())

	return newClientDevice(address, client), nil
}

// Close stops the controller. It does not disconnect existing links; that must be done
// separately through Device.Close.
func (s *adapter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return nil
	}

	device := s.device
	s.device = nil
	if err := device.Stop(); err != nil {
		return fmt.Errorf("ble: failed to stop device: %s", err)
	}
	log.Debug("Closed go-ble adapter")
	return nil
}
