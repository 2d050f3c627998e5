package event

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/blesnip/leaudio-snippet/internal/log"
)

// MaxQueueSize caps the number of events held per (callback ID, name) pair. When a queue is full
// the oldest event is dropped.
const MaxQueueSize = 1024

// ErrTimeout is returned by WaitAndGet. Mobly clients recognise the message text and raise their
// own timeout error, so it must not change.
var ErrTimeout = errors.New("EventSnippetException: timeout.")

type queueKey struct {
	callbackID string
	name       string
}

// Cache holds posted events. The zero value is not usable; call NewCache.
type Cache struct {
	lock   sync.Mutex
	queues map[queueKey][]*Event
	// posted is closed and replaced whenever an event arrives, waking all waiters.
	posted chan struct{}
}

func NewCache() *Cache {
	return &Cache{
		queues: make(map[queueKey][]*Event),
		posted: make(chan struct{}),
	}
}

// Post appends e to its queue.
func (c *Cache) Post(e *Event) {
	c.lock.Lock()
	defer c.lock.Unlock()

	key := queueKey{e.CallbackID, e.Name}
	queue := c.queues[key]
	if len(queue) >= MaxQueueSize {
		log.Warning("Event queue %s|%s is full, dropping oldest event", e.CallbackID, e.Name)
		queue = queue[1:]
	}
	c.queues[key] = append(queue, e)
	log.Debug("Posted event %s|%s: %v", e.CallbackID, e.Name, e.Data)

	close(c.posted)
	c.posted = make(chan struct{})
}

// WaitAndGet removes and returns the oldest event posted under (callbackID, name), waiting up to
// timeout for one to arrive.
func (c *Cache) WaitAndGet(ctx context.Context, callbackID, name string, timeout time.Duration) (*Event, error) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	key := queueKey{callbackID, name}
	for {
		c.lock.Lock()
		if queue := c.queues[key]; len(queue) > 0 {
			e := queue[0]
			if len(queue) == 1 {
				delete(c.queues, key)
			} else {
				c.queues[key] = queue[1:]
			}
			c.lock.Unlock()
			return e, nil
		}
		posted := c.posted
		c.lock.Unlock()

		select {
		case <-posted:
		case <-deadline.C:
			return nil, ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// GetAll removes and returns every event posted under (callbackID, name), oldest first. The
// result is empty (not nil) when no events are queued.
func (c *Cache) GetAll(callbackID, name string) []*Event {
	c.lock.Lock()
	defer c.lock.Unlock()

	key := queueKey{callbackID, name}
	events := c.queues[key]
	delete(c.queues, key)
	if events == nil {
		return []*Event{}
	}
	return events
}

// Clear drops every queued event. If callbackIDs are given, only their events are dropped.
func (c *Cache) Clear(callbackIDs ...string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if len(callbackIDs) == 0 {
		c.queues = make(map[queueKey][]*Event)
		return
	}
	for key := range c.queues {
		for _, id := range callbackIDs {
			if key.callbackID == id {
				delete(c.queues, key)
			}
		}
	}
}
