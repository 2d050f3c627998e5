package leaudio

import (
	"strconv"

	"github.com/blesnip/leaudio-snippet/internal/log"
	"github.com/blesnip/leaudio-snippet/pkg/event"
	"github.com/blesnip/leaudio-snippet/pkg/gatt"
)

const (
	EventConnectionStateChange = "onConnectionStateChange"
	EventServiceDiscovered     = "onServiceDiscovered"
)

// gattCallback posts GATT results under the callback ID of one LeAudioConnectGatt call.
type gattCallback struct {
	snippet    *Snippet
	callbackID string
}

func (c *gattCallback) OnConnectionStateChange(client *gatt.Client, status int, newState int) {
	e := event.New(c.callbackID, EventConnectionStateChange)
	e.Data["status"] = strconv.Itoa(status)
	e.Data["newState"] = strconv.Itoa(newState)
	c.snippet.events.Post(e)

	if newState == gatt.StateConnected {
		log.Debug("LE Audio device %s connected, pairing is handled by the host stack", client.Address())
	}
}

func (c *gattCallback) OnServicesDiscovered(client *gatt.Client, status int) {
	services := client.Services()
	c.snippet.recordServices(services)

	e := event.New(c.callbackID, EventServiceDiscovered)
	e.Data["status"] = strconv.Itoa(status)
	e.Data["Services"] = serializeServices(services)
	c.snippet.events.Post(e)
}
