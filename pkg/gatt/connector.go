package gatt

import (
	"context"
	"sync"
	"time"

	"github.com/blesnip/leaudio-snippet/internal/log"
	"github.com/blesnip/leaudio-snippet/pkg/connector/ble"
)

// Connector opens GATT client handles through an Adapter.
type Connector struct {
	ConnectTimeout   time.Duration // Bound on a single dial attempt.
	RetryInterval    time.Duration // Pause between auto-connect attempts.
	DiscoveryTimeout time.Duration

	adapter ble.Adapter

	lock  sync.Mutex
	links map[string]*link
}

func NewConnector(adapter ble.Adapter) *Connector {
	return &Connector{
		ConnectTimeout:   DefaultConnectTimeout,
		RetryInterval:    DefaultRetryInterval,
		DiscoveryTimeout: DefaultDiscoveryTimeout,
		adapter:          adapter,
		links:            make(map[string]*link),
	}
}

// Connect returns a new handle for the device at address and starts connecting it in the
// background.
//
// With autoConnect false a single attempt bounded by ConnectTimeout is made, and a failure is
// reported as (StatusFailure, StateDisconnected). With autoConnect true the connector keeps
// dialing, and redials after link loss, until the handle is disconnected or closed.
func (c *Connector) Connect(address string, autoConnect bool, callback Callback) (*Client, error) {
	address, err := ble.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	client := &Client{
		address:     address,
		autoConnect: autoConnect,
		callback:    callback,
	}
	log.Debug("New GATT client for %s (autoConnect=%t)", address, autoConnect)
	for {
		l := c.linkFor(address)
		client.link = l
		if l.attach(client) {
			return client, nil
		}
		// The link is being torn down; replace it.
		c.dropLink(l)
	}
}

func (c *Connector) linkFor(address string) *link {
	c.lock.Lock()
	defer c.lock.Unlock()
	l, ok := c.links[address]
	if !ok {
		l = newLink(c, address)
		c.links[address] = l
	}
	return l
}

// Close tears down every link opened by the connector. Handles stop receiving callbacks.
func (c *Connector) Close() {
	c.lock.Lock()
	links := c.links
	c.links = make(map[string]*link)
	c.lock.Unlock()

	for _, l := range links {
		l.shutdown()
	}
}

func (c *Connector) dropLink(l *link) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.links[l.address] == l {
		delete(c.links, l.address)
	}
}

// link is the shared connection to one remote address.
type link struct {
	connector *Connector
	address   string
	ctx       context.Context
	cancel    context.CancelFunc

	lock    sync.Mutex
	device  ble.Device
	dialing bool
	// dead is set under lock before the link is cancelled. A dead link accepts no clients.
	dead    bool
	clients map[*Client]struct{}
}

func newLink(c *Connector, address string) *link {
	ctx, cancel := context.WithCancel(context.Background())
	return &link{
		connector: c,
		address:   address,
		ctx:       ctx,
		cancel:    cancel,
		clients:   make(map[*Client]struct{}),
	}
}

// attach registers client and starts dialing if needed. It returns false if the link is dead.
func (l *link) attach(client *Client) bool {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.dead {
		return false
	}
	l.clients[client] = struct{}{}
	if l.device != nil {
		go client.notifyState(StatusSuccess, StateConnected)
		return true
	}
	if !l.dialing {
		l.dialing = true
		go l.dial()
	}
	return true
}

// detach removes client from the link, closing the link if it was the last one.
func (l *link) detach(client *Client, notify bool) {
	l.lock.Lock()
	if _, ok := l.clients[client]; !ok {
		l.lock.Unlock()
		return
	}
	delete(l.clients, client)
	wasConnected := l.device != nil
	last := len(l.clients) == 0
	var device ble.Device
	if last {
		device = l.device
		l.device = nil
		l.dead = true
	}
	l.lock.Unlock()

	if last {
		l.cancel()
		l.connector.dropLink(l)
		if device != nil {
			if err := device.Close(); err != nil {
				log.Warning("gatt: failed to close link to %s: %s", l.address, err)
			}
		}
	}
	if notify && wasConnected {
		client.notifyState(StatusSuccess, StateDisconnected)
	}
}

func (l *link) currentDevice() ble.Device {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.device
}

func (l *link) snapshot() []*Client {
	clients := make([]*Client, 0, len(l.clients))
	for c := range l.clients {
		clients = append(clients, c)
	}
	return clients
}

func (l *link) dial() {
	for {
		if l.ctx.Err() != nil {
			l.lock.Lock()
			l.dialing = false
			l.lock.Unlock()
			return
		}
		ctx, cancel := context.WithTimeout(l.ctx, l.connector.ConnectTimeout)
		device, err := l.connector.adapter.Connect(ctx, l.address)
		cancel()

		l.lock.Lock()
		if err == nil {
			if len(l.clients) == 0 || l.ctx.Err() != nil {
				l.dialing = false
				l.lock.Unlock()
				device.Close()
				return
			}
			l.device = device
			l.dialing = false
			clients := l.snapshot()
			l.lock.Unlock()

			log.Info("GATT link to %s established", l.address)
			for _, c := range clients {
				c.notifyState(StatusSuccess, StateConnected)
			}
			go l.watch(device)
			return
		}

		if l.ctx.Err() != nil {
			l.dialing = false
			l.lock.Unlock()
			return
		}

		log.Warning("GATT connection attempt to %s failed: %s", l.address, err)
		var failed []*Client
		for c := range l.clients {
			if !c.autoConnect {
				failed = append(failed, c)
				delete(l.clients, c)
			}
		}
		retry := len(l.clients) > 0
		if !retry {
			l.dialing = false
			l.dead = true
		}
		l.lock.Unlock()

		for _, c := range failed {
			c.markFailed()
			c.notifyState(StatusFailure, StateDisconnected)
		}
		if !retry {
			l.cancel()
			l.connector.dropLink(l)
			return
		}

		select {
		case <-time.After(l.connector.RetryInterval):
		case <-l.ctx.Done():
			l.lock.Lock()
			l.dialing = false
			l.lock.Unlock()
			return
		}
	}
}

// watch reports link loss and, if auto-connect handles remain, starts redialing.
func (l *link) watch(device ble.Device) {
	select {
	case <-device.Disconnected():
	case <-l.ctx.Done():
		return
	}

	l.lock.Lock()
	if l.device != device {
		l.lock.Unlock()
		return
	}
	l.device = nil
	clients := l.snapshot()
	var failed []*Client
	for _, c := range clients {
		if !c.autoConnect {
			failed = append(failed, c)
			delete(l.clients, c)
		}
	}
	redial := len(l.clients) > 0
	if redial {
		l.dialing = true
	} else {
		l.dead = true
	}
	l.lock.Unlock()

	log.Info("GATT link to %s lost", l.address)
	for _, c := range failed {
		c.markFailed()
	}
	for _, c := range clients {
		c.notifyState(StatusSuccess, StateDisconnected)
	}
	if redial {
		go l.dial()
	} else {
		l.cancel()
		l.connector.dropLink(l)
	}
}

// shutdown closes the link regardless of attached clients, silencing their callbacks.
func (l *link) shutdown() {
	l.lock.Lock()
	l.dead = true
	l.lock.Unlock()
	l.cancel()

	l.lock.Lock()
	device := l.device
	l.device = nil
	clients := l.snapshot()
	l.clients = make(map[*Client]struct{})
	l.lock.Unlock()

	for _, c := range clients {
		c.markClosed()
	}
	if device != nil {
		if err := device.Close(); err != nil {
			log.Warning("gatt: failed to close link to %s: %s", l.address, err)
		}
	}
}
