package leaudio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/blesnip/leaudio-snippet/mocks"
	"github.com/blesnip/leaudio-snippet/pkg/connector/ble"
	"github.com/blesnip/leaudio-snippet/pkg/event"
	"github.com/blesnip/leaudio-snippet/pkg/gatt"
	"github.com/blesnip/leaudio-snippet/pkg/media"
	"github.com/blesnip/leaudio-snippet/pkg/snippet"
)

const (
	address        = "AA:BB:CC:DD:EE:FF"
	callbackID     = "1-1"
	pacsUUID       = "00001850-0000-1000-8000-00805f9b34fb"
	sinkPACUUID    = "00002bc9-0000-1000-8000-00805f9b34fb"
	ascsUUID       = "0000184e-0000-1000-8000-00805f9b34fb"
	aseControlUUID = "00002bc6-0000-1000-8000-00805f9b34fb"
)

var profile = []ble.Service{
	{
		UUID:    pacsUUID,
		Primary: true,
		Characteristics: []ble.Characteristic{
			{UUID: sinkPACUUID, Properties: ble.PropertyRead | ble.PropertyNotify, Handle: 0x0021},
		},
	},
	{
		UUID:    ascsUUID,
		Primary: true,
		Characteristics: []ble.Characteristic{
			{UUID: aseControlUUID, Properties: ble.PropertyWrite | ble.PropertyWriteNoResponse | ble.PropertyNotify, Handle: 0x0031},
		},
	},
}

var _ = Describe("Snippet", func() {
	var (
		ctrl      *gomock.Controller
		adapter   *mocks.BLEAdapter
		device    *mocks.BLEDevice
		player    *mocks.MediaPlayer
		events    *event.Cache
		connector *gatt.Connector
		s         *Snippet
	)

	waitForEvent := func(name string) *event.Event {
		e, err := events.WaitAndGet(context.Background(), callbackID, name, 2*time.Second)
		Expect(err).ToNot(HaveOccurred())
		return e
	}

	connect := func() {
		adapter.EXPECT().Connect(gomock.Any(), address).Return(device, nil).Times(1)
		Expect(s.ConnectGatt(callbackID, "aa:bb:cc:dd:ee:ff")).To(Succeed())
		for i := 0; i < 2; i++ {
			e := waitForEvent(EventConnectionStateChange)
			Expect(e.Data).To(Equal(event.Bundle{"status": "0", "newState": "2"}))
		}
	}

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		adapter = mocks.NewBLEAdapter(ctrl)
		device = mocks.NewBLEDevice(ctrl)
		player = mocks.NewMediaPlayer(ctrl)
		var linkDown <-chan struct{} = make(chan struct{})
		device.EXPECT().Disconnected().Return(linkDown).AnyTimes()
		device.EXPECT().Address().Return(address).AnyTimes()

		events = event.NewCache()
		connector = gatt.NewConnector(adapter)
		connector.ConnectTimeout = 100 * time.Millisecond
		connector.RetryInterval = 10 * time.Millisecond
		s = New(connector, player, events)
		s.elapsedRealtime = func() int64 { return 123456789 }
		DeferCleanup(func() {
			connector.Close()
			ctrl.Finish()
		})
	})

	Context("before connecting", func() {
		It("refuses to disconnect", func() {
			Expect(s.Disconnect()).To(MatchError("BLE client is not initialized."))
		})

		It("refuses to discover services", func() {
			_, err := s.DiscoverServices()
			Expect(err).To(MatchError("BLE client is not initialized."))
		})

		It("rejects invalid addresses", func() {
			err := s.ConnectGatt(callbackID, "AA:BB")
			Expect(errors.Is(err, ble.ErrInvalidAddress)).To(BeTrue())
			Expect(s.Disconnect()).To(MatchError(ErrClientNotInitialized))
		})
	})

	It("reports both connection requests", func() {
		device.EXPECT().Close().Return(nil).AnyTimes()
		connect()
		Expect(events.GetAll(callbackID, EventConnectionStateChange)).To(BeEmpty())
	})

	It("reports a failed direct attempt while auto-connect keeps trying", func() {
		adapter.EXPECT().Connect(gomock.Any(), address).Return(nil, errors.New("page timeout")).Times(1)
		adapter.EXPECT().Connect(gomock.Any(), address).Return(device, nil)
		device.EXPECT().Close().Return(nil).AnyTimes()

		Expect(s.ConnectGatt(callbackID, address)).To(Succeed())
		e := waitForEvent(EventConnectionStateChange)
		Expect(e.Data).To(Equal(event.Bundle{"status": "257", "newState": "0"}))
		e = waitForEvent(EventConnectionStateChange)
		Expect(e.Data).To(Equal(event.Bundle{"status": "0", "newState": "2"}))
	})

	It("disconnects and drops the link", func() {
		connect()
		device.EXPECT().Close().Return(nil).Times(1)

		Expect(s.Disconnect()).To(Succeed())
		e := waitForEvent(EventConnectionStateChange)
		Expect(e.Data).To(Equal(event.Bundle{"status": "0", "newState": "0"}))
		// The superseded direct handle is released silently.
		Consistently(func() []*event.Event {
			return events.GetAll(callbackID, EventConnectionStateChange)
		}, 50*time.Millisecond).Should(BeEmpty())

		_, err := s.DiscoverServices()
		Expect(err).To(MatchError("Discover services returned false."))
	})

	It("discovers services", func() {
		device.EXPECT().Close().Return(nil).AnyTimes()
		connect()
		device.EXPECT().DiscoverProfile(gomock.Any()).Return(profile, nil)

		start, err := s.DiscoverServices()
		Expect(err).ToNot(HaveOccurred())
		Expect(start).To(BeEquivalentTo(123456789))

		e := waitForEvent(EventServiceDiscovered)
		Expect(e.Data["status"]).To(Equal("0"))
		services, ok := e.Data["Services"].([]event.Bundle)
		Expect(ok).To(BeTrue())
		Expect(services).To(HaveLen(2))
		Expect(services[0]["UUID"]).To(Equal(pacsUUID))

		c, ok := s.Characteristic(ascsUUID, aseControlUUID)
		Expect(ok).To(BeTrue())
		Expect(c.Handle).To(BeEquivalentTo(0x0031))
		_, ok = s.Characteristic(ascsUUID, sinkPACUUID)
		Expect(ok).To(BeFalse())
	})

	It("reports failed discovery", func() {
		device.EXPECT().Close().Return(nil).AnyTimes()
		connect()
		device.EXPECT().DiscoverProfile(gomock.Any()).Return(nil, errors.New("att timeout"))

		_, err := s.DiscoverServices()
		Expect(err).ToNot(HaveOccurred())
		e := waitForEvent(EventServiceDiscovered)
		Expect(e.Data["status"]).To(Equal(fmt.Sprint(gatt.StatusFailure)))
		Expect(e.Data["Services"]).To(BeEmpty())
	})

	It("refuses discovery while the link is down", func() {
		adapter.EXPECT().Connect(gomock.Any(), address).Return(nil, errors.New("page timeout")).AnyTimes()
		Expect(s.ConnectGatt(callbackID, address)).To(Succeed())

		_, err := s.DiscoverServices()
		Expect(err).To(MatchError(ErrDiscoverRefused))
	})

	Context("media", func() {
		It("delegates to the player", func() {
			ctx := context.Background()
			gomock.InOrder(
				player.EXPECT().Play(ctx, "/sdcard/tone.wav").Return(nil),
				player.EXPECT().Pause().Return(nil),
				player.EXPECT().Stop().Return(nil),
			)
			Expect(s.PlayMedia(ctx, "/sdcard/tone.wav")).To(Succeed())
			Expect(s.PauseMedia()).To(Succeed())
			Expect(s.StopMedia()).To(Succeed())
		})

		It("propagates player errors", func() {
			player.EXPECT().Pause().Return(media.ErrNotPlaying)
			Expect(s.PauseMedia()).To(MatchError(media.ErrNotPlaying))
		})
	})

	It("releases everything on shutdown", func() {
		connect()
		device.EXPECT().Close().Return(nil).Times(1)
		player.EXPECT().Stop().Return(nil)

		s.Shutdown()
		Expect(s.Disconnect()).To(MatchError(ErrClientNotInitialized))
		Consistently(func() []*event.Event {
			return events.GetAll(callbackID, EventConnectionStateChange)
		}, 50*time.Millisecond).Should(BeEmpty())
	})

	Context("over the wire", func() {
		var client *snippet.Client

		BeforeEach(func() {
			server, err := snippet.NewServer(events, s)
			Expect(err).ToNot(HaveOccurred())
			listener, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).ToNot(HaveOccurred())
			go server.Serve(listener)

			client, err = snippet.Dial(context.Background(), listener.Addr().String())
			Expect(err).ToNot(HaveOccurred())
			player.EXPECT().Stop().Return(nil).AnyTimes()
			DeferCleanup(func() {
				client.Close()
				server.Close()
			})
		})

		It("assigns a callback id to LeAudioConnectGatt", func() {
			adapter.EXPECT().Connect(gomock.Any(), address).Return(device, nil)
			device.EXPECT().Close().Return(nil).AnyTimes()
			ctx := context.Background()

			response, err := client.Call(ctx, "LeAudioConnectGatt", address)
			Expect(err).ToNot(HaveOccurred())
			Expect(response.Callback).ToNot(BeNil())

			response, err = client.Call(ctx, "eventWaitAndGet", *response.Callback, EventConnectionStateChange, 2000)
			Expect(err).ToNot(HaveOccurred())
			Expect(response.Result).To(HaveKeyWithValue("data", map[string]interface{}{"status": "0", "newState": "2"}))
		})

		It("returns the exact error text", func() {
			_, err := client.Call(context.Background(), "LeAudioDisconnect")
			var rpcErr *snippet.RPCError
			Expect(errors.As(err, &rpcErr)).To(BeTrue())
			Expect(rpcErr.Message).To(Equal("BLE client is not initialized."))
		})

		It("requires a media uri", func() {
			_, err := client.Call(context.Background(), "LeAudioPlayMedia")
			Expect(err).To(MatchError(ContainSubstring("LeAudioPlayMedia: missing parameter 0")))
		})
	})
})
