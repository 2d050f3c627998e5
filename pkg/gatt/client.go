package gatt

import (
	"context"
	"sync"

	"github.com/blesnip/leaudio-snippet/internal/log"
	"github.com/blesnip/leaudio-snippet/pkg/connector/ble"
)

// Client is a GATT client handle, the equivalent of an Android BluetoothGatt object.
type Client struct {
	address     string
	autoConnect bool
	callback    Callback
	link        *link

	// callbackLock serialises callback invocations for this handle.
	callbackLock sync.Mutex

	lock        sync.Mutex
	connected   bool
	discovering bool
	detached    bool
	closed      bool
	services    []ble.Service
}

func (c *Client) Address() string {
	return c.address
}

func (c *Client) AutoConnect() bool {
	return c.autoConnect
}

// Connected reports whether the handle's link is currently up.
func (c *Client) Connected() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.connected
}

// Services returns the result of the last successful discovery.
func (c *Client) Services() ServiceList {
	c.lock.Lock()
	defer c.lock.Unlock()
	services := make(ServiceList, len(c.services))
	copy(services, c.services)
	return services
}

// DiscoverServices starts service discovery and returns immediately. It returns false if the
// handle is not connected or a discovery is already running; otherwise OnServicesDiscovered is
// called once discovery completes.
func (c *Client) DiscoverServices() bool {
	c.lock.Lock()
	if c.closed || c.detached || !c.connected || c.discovering {
		c.lock.Unlock()
		return false
	}
	device := c.link.currentDevice()
	if device == nil {
		c.lock.Unlock()
		return false
	}
	c.discovering = true
	c.lock.Unlock()

	go c.discover(device)
	return true
}

func (c *Client) discover(device ble.Device) {
	ctx, cancel := context.WithTimeout(c.link.ctx, c.link.connector.DiscoveryTimeout)
	defer cancel()

	log.Debug("Discovering services on %s...", c.address)
	services, err := device.DiscoverProfile(ctx)
	status := StatusSuccess
	if err != nil {
		log.Warning("gatt: service discovery on %s failed: %s", c.address, err)
		status = StatusFailure
	}

	c.lock.Lock()
	c.discovering = false
	if err == nil {
		c.services = services
	}
	c.lock.Unlock()

	c.callbackLock.Lock()
	defer c.callbackLock.Unlock()
	if c.isClosed() {
		return
	}
	c.callback.OnServicesDiscovered(c, status)
}

// Disconnect detaches the handle from its link. If the handle was connected, a
// (StatusSuccess, StateDisconnected) callback follows. The link itself is torn down once no
// handle uses it.
func (c *Client) Disconnect() {
	c.lock.Lock()
	if c.detached {
		c.lock.Unlock()
		return
	}
	c.detached = true
	c.lock.Unlock()

	c.link.detach(c, true)
}

// Close disconnects the handle and stops all further callbacks.
func (c *Client) Close() {
	c.markClosed()
	c.lock.Lock()
	c.detached = true
	c.lock.Unlock()
	c.link.detach(c, false)
}

func (c *Client) isClosed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.closed
}

func (c *Client) markClosed() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.closed = true
	c.connected = false
}

// markFailed records that the link dropped the handle (failed direct connect or link loss).
func (c *Client) markFailed() {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.detached = true
	c.connected = false
}

func (c *Client) notifyState(status, newState int) {
	c.callbackLock.Lock()
	defer c.callbackLock.Unlock()

	c.lock.Lock()
	if c.closed || (c.detached && newState == StateConnected) {
		c.lock.Unlock()
		return
	}
	c.connected = newState == StateConnected
	c.lock.Unlock()

	c.callback.OnConnectionStateChange(c, status, newState)
}
