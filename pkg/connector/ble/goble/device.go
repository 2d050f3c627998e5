package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	goble "github.com/go-ble/ble"

	"github.com/blesnip/leaudio-snippet/internal/log"
	"github.com/blesnip/leaudio-snippet/pkg/connector/ble"
)

type device struct {
	address string
	client  goble.Client

	closeOnce sync.Once
	closeErr  error
}

func newClientDevice(address string, client goble.Client) *device {
	return &device{address: address, client: client}
}

func (c *device) Address() string {
	return c.address
}

func (c *device) DiscoverProfile(ctx context.Context) ([]ble.Service, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// go-ble's discovery is not context aware, so run it in the background and give up waiting
	// if ctx expires first. The link is torn down by the caller in that case, which unblocks
	// the pending ATT request.
	type result struct {
		profile *goble.Profile
		err     error
	}
	done := make(chan result, 1)
	go func() {
		profile, err := c.client.DiscoverProfile(true)
		done <- result{profile, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("ble: failed to discover profile of %s: %s", c.address, r.err)
		}
		return convertProfile(r.profile), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.client.Disconnected():
		return nil, ble.ErrNotConnected
	}
}

func (c *device) Disconnected() <-chan struct{} {
	return c.client.Disconnected()
}

func (c *device) Close() error {
	c.closeOnce.Do(func() {
		err1 := c.client.ClearSubscriptions()
		err2 := c.client.CancelConnection()
		c.closeErr = errors.Join(err1, err2)
		log.Debug("Closed link to %s", c.address)
	})
	return c.closeErr
}
