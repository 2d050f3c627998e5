// Package leaudio implements the LE Audio client snippet: GATT connection management, service
// discovery, and media playback controls for an LE Audio peripheral under test.
//
// Connection and discovery results are asynchronous. They are posted to the event cache under the
// callback ID of the LeAudioConnectGatt call that created the GATT client:
//
//	onConnectionStateChange  {"status": "0", "newState": "2"}
//	onServiceDiscovered      {"status": "0", "Services": [...]}
package leaudio

import (
	"context"
	"errors"
	"sync"

	"github.com/blesnip/leaudio-snippet/internal/log"
	"github.com/blesnip/leaudio-snippet/pkg/connector/ble"
	"github.com/blesnip/leaudio-snippet/pkg/event"
	"github.com/blesnip/leaudio-snippet/pkg/gatt"
	"github.com/blesnip/leaudio-snippet/pkg/media"
)

// Harness scripts match on these messages.
var (
	ErrClientNotInitialized = errors.New("BLE client is not initialized.")
	ErrDiscoverRefused      = errors.New("Discover services returned false.")
)

// Snippet holds the GATT client and media player driven by the RPCs.
type Snippet struct {
	connector *gatt.Connector
	player    media.Player
	events    *event.Cache
	// elapsedRealtime returns nanoseconds since boot. Replaced in tests.
	elapsedRealtime func() int64

	lock   sync.Mutex
	client *gatt.Client
	// superseded holds handles replaced as the active client. They keep the link alive until
	// the active client is disconnected.
	superseded      []*gatt.Client
	characteristics map[string]map[string]ble.Characteristic
}

func New(connector *gatt.Connector, player media.Player, events *event.Cache) *Snippet {
	return &Snippet{
		connector:       connector,
		player:          player,
		events:          events,
		elapsedRealtime: elapsedRealtimeNanos,
		characteristics: make(map[string]map[string]ble.Characteristic),
	}
}

// ConnectGatt opens a direct connection to address followed by an auto-connect one, both
// reporting to callbackID. The auto-connect handle becomes the active client.
func (s *Snippet) ConnectGatt(callbackID, address string) error {
	callback := &gattCallback{snippet: s, callbackID: callbackID}

	direct, err := s.connector.Connect(address, false, callback)
	if err != nil {
		return err
	}
	// The second request keeps the link up once it is established, which gives the stack time to
	// run pairing and encryption.
	auto, err := s.connector.Connect(address, true, callback)
	if err != nil {
		direct.Close()
		return err
	}

	s.lock.Lock()
	if s.client != nil {
		s.superseded = append(s.superseded, s.client)
	}
	s.superseded = append(s.superseded, direct)
	s.client = auto
	s.lock.Unlock()

	log.Debug("Attempting to connect to %s with secure connection...", address)
	return nil
}

// Disconnect disconnects the active client.
func (s *Snippet) Disconnect() error {
	s.lock.Lock()
	client := s.client
	superseded := s.superseded
	s.superseded = nil
	s.lock.Unlock()

	if client == nil {
		return ErrClientNotInitialized
	}
	for _, c := range superseded {
		c.Close()
	}
	client.Disconnect()
	return nil
}

// DiscoverServices starts service discovery on the active client and returns the start time in
// nanoseconds since boot.
func (s *Snippet) DiscoverServices() (int64, error) {
	s.lock.Lock()
	client := s.client
	s.lock.Unlock()

	if client == nil {
		return 0, ErrClientNotInitialized
	}
	start := s.elapsedRealtime()
	if !client.DiscoverServices() {
		return 0, ErrDiscoverRefused
	}
	return start, nil
}

func (s *Snippet) PlayMedia(ctx context.Context, uri string) error {
	return s.player.Play(ctx, uri)
}

func (s *Snippet) PauseMedia() error {
	return s.player.Pause()
}

func (s *Snippet) StopMedia() error {
	return s.player.Stop()
}

// Characteristic looks up a characteristic recorded by the latest discovery of its service.
func (s *Snippet) Characteristic(serviceUUID, characteristicUUID string) (ble.Characteristic, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	c, ok := s.characteristics[serviceUUID][characteristicUUID]
	return c, ok
}

func (s *Snippet) recordServices(services []ble.Service) {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, service := range services {
		byUUID := make(map[string]ble.Characteristic, len(service.Characteristics))
		for _, c := range service.Characteristics {
			byUUID[c.UUID] = c
		}
		s.characteristics[service.UUID] = byUUID
	}
}

// Shutdown closes every GATT client and stops playback.
func (s *Snippet) Shutdown() {
	s.lock.Lock()
	clients := append(s.superseded, s.client)
	s.client = nil
	s.superseded = nil
	s.lock.Unlock()

	for _, c := range clients {
		if c != nil {
			c.Close()
		}
	}
	if err := s.player.Stop(); err != nil {
		log.Warning("Failed to stop media: %s", err)
	}
}
