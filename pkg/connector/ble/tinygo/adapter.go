package tinygo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/blesnip/leaudio-snippet/internal/log"
	"github.com/blesnip/leaudio-snippet/pkg/connector/ble"
)

// NewAdapter enables the controller identified by id ("" for the system default).
func NewAdapter(id string) (ble.Adapter, error) {
	controller, err := newAdapter(id)
	if err != nil {
		return nil, fmt.Errorf("ble: failed to create device: %w", err)
	}
	if err = controller.Enable(); err != nil {
		err = fmt.Errorf("ble: failed to enable device: %w", err)
		if help := adapterHelp(err); help != "" {
			return nil, &ble.AdapterError{Err: err, Help: help}
		}
		return nil, err
	}
	log.Debug("Enabled tinygo bluetooth adapter")

	a := &adapter{
		device: controller,
		links:  make(map[string]*device),
	}
	// The library reports every link through one adapter-wide handler.
	controller.SetConnectHandler(func(d bluetooth.Device, connected bool) {
		a.connectionChanged(d.Address.String(), connected)
	})
	return a, nil
}

type adapter struct {
	mu     sync.Mutex
	device *bluetooth.Adapter
	// links holds open devices by normalized address.
	links map[string]*device
}

// connectionChanged marks the open link to address as lost when the stack reports a disconnect.
func (s *adapter) connectionChanged(address string, connected bool) {
	if connected {
		return
	}
	address, err := ble.NormalizeAddress(address)
	if err != nil {
		return
	}
	s.mu.Lock()
	link := s.links[address]
	delete(s.links, address)
	s.mu.Unlock()
	if link != nil {
		log.Info("Link to %s lost", address)
		link.lost()
	}
}

func (s *adapter) register(d *device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[d.address] = d
}

func (s *adapter) forget(d *device) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.links[d.address] == d {
		delete(s.links, d.address)
	}
}

func (s *adapter) Connect(ctx context.Context, address string) (ble.Device, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.mu.Lock()
	controller := s.device
	s.mu.Unlock()
	if controller == nil {
		return nil, ble.ErrNotConnected
	}

	if normalized, err := ble.NormalizeAddress(address); err == nil {
		address = normalized
	}
	addr, err := parseAddress(address)
	if err != nil {
		return nil, err
	}

	// FIXME: The bluetooth library does not take a context, so the connection runs in a
	// goroutine and is dropped again if ctx expires first. See:
	// https://github.com/tinygo-org/bluetooth/issues/339
	clientCh := make(chan bluetooth.Device, 1)
	errorCh := make(chan error, 1)
	go func() {
		params := bluetooth.ConnectionParams{}
		// If a deadline is set, use it as the connection timeout
		// else this go routine will expire after the default timeout.
		if deadline, ok := ctx.Deadline(); ok {
			params.ConnectionTimeout = bluetooth.NewDuration(time.Until(deadline))
		}

		client, err := controller.Connect(addr, params)
		if err != nil {
			errorCh <- err
			return
		}
		if ctx.Err() == nil {
			clientCh <- client
			return
		}
		if err := client.Disconnect(); err != nil {
			log.Warning("ble: failed to disconnect: %s", err)
		}
	}()

	select {
	case client := <-clientCh:
		log.Info("Connected to %s", address)
		d := newClientDevice(s, address, client)
		s.register(d)
		return d, nil
	case err := <-errorCh:
		return nil, fmt.Errorf("ble: failed to connect to %s: %s", address, err)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *adapter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device = nil
	return nil
}
