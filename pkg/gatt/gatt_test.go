package gatt_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/blesnip/leaudio-snippet/mocks"
	"github.com/blesnip/leaudio-snippet/pkg/connector/ble"
	"github.com/blesnip/leaudio-snippet/pkg/gatt"
)

const address = "AA:BB:CC:DD:EE:FF"

type stateChange struct {
	Status int
	State  int
}

type recorder struct {
	lock       sync.Mutex
	states     []stateChange
	discovered []int
}

func (r *recorder) OnConnectionStateChange(_ *gatt.Client, status int, newState int) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.states = append(r.states, stateChange{status, newState})
}

func (r *recorder) OnServicesDiscovered(_ *gatt.Client, status int) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.discovered = append(r.discovered, status)
}

func (r *recorder) States() []stateChange {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]stateChange(nil), r.states...)
}

func (r *recorder) Discovered() []int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]int(nil), r.discovered...)
}

var (
	connected    = stateChange{gatt.StatusSuccess, gatt.StateConnected}
	disconnected = stateChange{gatt.StatusSuccess, gatt.StateDisconnected}
	failed       = stateChange{gatt.StatusFailure, gatt.StateDisconnected}
)

var _ = Describe("Connector", func() {
	var (
		ctrl      *gomock.Controller
		adapter   *mocks.BLEAdapter
		device    *mocks.BLEDevice
		linkDown  chan struct{}
		connector *gatt.Connector
	)

	BeforeEach(func() {
		ctrl = gomock.NewController(GinkgoT())
		adapter = mocks.NewBLEAdapter(ctrl)
		device = mocks.NewBLEDevice(ctrl)
		linkDown = make(chan struct{})
		var disconnectedCh <-chan struct{} = linkDown
		device.EXPECT().Disconnected().Return(disconnectedCh).AnyTimes()
		device.EXPECT().Address().Return(address).AnyTimes()

		connector = gatt.NewConnector(adapter)
		connector.ConnectTimeout = time.Second
		connector.RetryInterval = 10 * time.Millisecond
		connector.DiscoveryTimeout = time.Second
		DeferCleanup(func() {
			connector.Close()
			ctrl.Finish()
		})
	})

	It("rejects malformed addresses", func() {
		_, err := connector.Connect("not-an-address", false, &recorder{})
		Expect(errors.Is(err, ble.ErrInvalidAddress)).To(BeTrue())
	})

	It("refuses discovery before the link is up", func() {
		adapter.EXPECT().Connect(gomock.Any(), address).DoAndReturn(
			func(ctx context.Context, _ string) (ble.Device, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			}).MaxTimes(1)

		client, err := connector.Connect(address, false, &recorder{})
		Expect(err).ToNot(HaveOccurred())
		Expect(client.DiscoverServices()).To(BeFalse())
	})

	Context("direct connection", func() {
		It("reports the connected state", func() {
			adapter.EXPECT().Connect(gomock.Any(), address).Return(device, nil)
			device.EXPECT().Close().Return(nil).AnyTimes()

			cb := &recorder{}
			client, err := connector.Connect("aa:bb:cc:dd:ee:ff", false, cb)
			Expect(err).ToNot(HaveOccurred())
			Expect(client.Address()).To(Equal(address))
			Eventually(cb.States).Should(Equal([]stateChange{connected}))
			Expect(client.Connected()).To(BeTrue())
		})

		It("reports a single failure without retrying", func() {
			adapter.EXPECT().Connect(gomock.Any(), address).Return(nil, errors.New("page timeout")).Times(1)

			cb := &recorder{}
			client, err := connector.Connect(address, false, cb)
			Expect(err).ToNot(HaveOccurred())
			Eventually(cb.States).Should(Equal([]stateChange{failed}))
			Consistently(cb.States, 50*time.Millisecond).Should(HaveLen(1))
			Expect(client.DiscoverServices()).To(BeFalse())
		})

		It("reports disconnection and closes the link", func() {
			adapter.EXPECT().Connect(gomock.Any(), address).Return(device, nil)
			device.EXPECT().Close().Return(nil).Times(1)

			cb := &recorder{}
			client, err := connector.Connect(address, false, cb)
			Expect(err).ToNot(HaveOccurred())
			Eventually(client.Connected).Should(BeTrue())

			client.Disconnect()
			Eventually(cb.States).Should(Equal([]stateChange{connected, disconnected}))
			Expect(client.Connected()).To(BeFalse())
			// Repeated calls are ignored.
			client.Disconnect()
		})
	})

	Context("auto connection", func() {
		It("retries until the device is reachable", func() {
			gomock.InOrder(
				adapter.EXPECT().Connect(gomock.Any(), address).Return(nil, errors.New("page timeout")).Times(2),
				adapter.EXPECT().Connect(gomock.Any(), address).Return(device, nil),
			)
			device.EXPECT().Close().Return(nil).AnyTimes()

			cb := &recorder{}
			_, err := connector.Connect(address, true, cb)
			Expect(err).ToNot(HaveOccurred())
			Eventually(cb.States).Should(Equal([]stateChange{connected}))
		})

		It("redials after link loss", func() {
			device2 := mocks.NewBLEDevice(ctrl)
			var never <-chan struct{} = make(chan struct{})
			device2.EXPECT().Disconnected().Return(never).AnyTimes()
			device2.EXPECT().Close().Return(nil).AnyTimes()
			gomock.InOrder(
				adapter.EXPECT().Connect(gomock.Any(), address).Return(device, nil),
				adapter.EXPECT().Connect(gomock.Any(), address).Return(device2, nil),
			)
			device.EXPECT().Close().Return(nil).AnyTimes()

			cb := &recorder{}
			_, err := connector.Connect(address, true, cb)
			Expect(err).ToNot(HaveOccurred())
			Eventually(cb.States).Should(Equal([]stateChange{connected}))

			close(linkDown)
			Eventually(cb.States).Should(Equal([]stateChange{connected, disconnected, connected}))
		})
	})

	Context("shared link", func() {
		It("keeps the link up while another handle uses it", func() {
			adapter.EXPECT().Connect(gomock.Any(), address).Return(device, nil).Times(1)

			direct, auto := &recorder{}, &recorder{}
			first, err := connector.Connect(address, false, direct)
			Expect(err).ToNot(HaveOccurred())
			second, err := connector.Connect(address, true, auto)
			Expect(err).ToNot(HaveOccurred())
			Eventually(direct.States).Should(Equal([]stateChange{connected}))
			Eventually(auto.States).Should(Equal([]stateChange{connected}))

			second.Disconnect()
			Eventually(auto.States).Should(Equal([]stateChange{connected, disconnected}))
			Expect(first.Connected()).To(BeTrue())

			device.EXPECT().Close().Return(nil).Times(1)
			first.Disconnect()
			Eventually(direct.States).Should(Equal([]stateChange{connected, disconnected}))
		})
	})

	Context("service discovery", func() {
		var services []ble.Service

		BeforeEach(func() {
			services = []ble.Service{{
				UUID:    "0000184e-0000-1000-8000-00805f9b34fb",
				Primary: true,
				Characteristics: []ble.Characteristic{{
					UUID:       "00002bc3-0000-1000-8000-00805f9b34fb",
					Properties: ble.PropertyRead | ble.PropertyNotify,
					Handle:     0x0012,
				}},
			}}
			adapter.EXPECT().Connect(gomock.Any(), address).Return(device, nil)
			device.EXPECT().Close().Return(nil).AnyTimes()
		})

		It("reports discovered services", func() {
			device.EXPECT().DiscoverProfile(gomock.Any()).Return(services, nil)

			cb := &recorder{}
			client, err := connector.Connect(address, false, cb)
			Expect(err).ToNot(HaveOccurred())
			Eventually(client.Connected).Should(BeTrue())

			Expect(client.DiscoverServices()).To(BeTrue())
			Eventually(cb.Discovered).Should(Equal([]int{gatt.StatusSuccess}))
			found, ok := client.Services().Find("0000184e-0000-1000-8000-00805f9b34fb")
			Expect(ok).To(BeTrue())
			Expect(found.Characteristics).To(HaveLen(1))
		})

		It("refuses overlapping discoveries", func() {
			release := make(chan struct{})
			device.EXPECT().DiscoverProfile(gomock.Any()).DoAndReturn(func(context.Context) ([]ble.Service, error) {
				<-release
				return nil, errors.New("att timeout")
			})

			cb := &recorder{}
			client, err := connector.Connect(address, false, cb)
			Expect(err).ToNot(HaveOccurred())
			Eventually(client.Connected).Should(BeTrue())

			Expect(client.DiscoverServices()).To(BeTrue())
			Expect(client.DiscoverServices()).To(BeFalse())
			close(release)
			Eventually(cb.Discovered).Should(Equal([]int{gatt.StatusFailure}))
			Expect(client.Services()).To(BeEmpty())
		})
	})

	It("stops callbacks once a handle is closed", func() {
		adapter.EXPECT().Connect(gomock.Any(), address).Return(device, nil)
		device.EXPECT().Close().Return(nil).Times(1)

		cb := &recorder{}
		client, err := connector.Connect(address, false, cb)
		Expect(err).ToNot(HaveOccurred())
		Eventually(client.Connected).Should(BeTrue())

		client.Close()
		Consistently(cb.States, 50*time.Millisecond).Should(Equal([]stateChange{connected}))
	})
})
