package tinygo

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/blesnip/leaudio-snippet/internal/log"
	"github.com/blesnip/leaudio-snippet/pkg/connector/ble"
)

type device struct {
	adapter *adapter
	address string
	client  bluetooth.Device

	closeOnce    sync.Once
	closeErr     error
	lostOnce     sync.Once
	disconnected chan struct{}
}

func newClientDevice(a *adapter, address string, client bluetooth.Device) *device {
	return &device{
		adapter:      a,
		address:      address,
		client:       client,
		disconnected: make(chan struct{}),
	}
}

func (c *device) lost() {
	c.lostOnce.Do(func() {
		close(c.disconnected)
	})
}

func (c *device) Address() string {
	return c.address
}

func (c *device) DiscoverProfile(ctx context.Context) ([]ble.Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type result struct {
		services []ble.Service
		err      error
	}
	done := make(chan result, 1)
	go func() {
		services, err := c.discover()
		done <- result{services, err}
	}()

	select {
	case r := <-done:
		return r.services, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.disconnected:
		return nil, ble.ErrNotConnected
	}
}

func (c *device) discover() ([]ble.Service, error) {
	services, err := c.client.DiscoverServices(nil)
	if err != nil {
		return nil, fmt.Errorf("ble: failed to enumerate device services: %s", err)
	}

	result := make([]ble.Service, 0, len(services))
	for _, s := range services {
		service := ble.Service{
			UUID:    s.UUID().String(),
			Primary: true,
		}
		characteristics, err := s.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, fmt.Errorf("ble: failed to discover service characteristics: %s", err)
		}
		for _, c := range characteristics {
			// The library does not expose properties or handles on every platform.
			service.Characteristics = append(service.Characteristics, ble.Characteristic{
				UUID: c.UUID().String(),
			})
		}
		result = append(result, service)
	}
	return result, nil
}

// Disconnected is closed by Close or when the adapter reports that the remote device dropped
// the link.
func (c *device) Disconnected() <-chan struct{} {
	return c.disconnected
}

func (c *device) Close() error {
	c.closeOnce.Do(func() {
		c.adapter.forget(c)
		c.closeErr = c.client.Disconnect()
		c.lost()
		log.Debug("Closed link to %s", c.address)
	})
	return c.closeErr
}
