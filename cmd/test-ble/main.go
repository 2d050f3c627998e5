package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/blesnip/leaudio-snippet/internal/log"
	"github.com/blesnip/leaudio-snippet/pkg/cli"
	"github.com/blesnip/leaudio-snippet/pkg/connector/ble"
	"github.com/blesnip/leaudio-snippet/pkg/gatt"
)

var (
	address      = flag.String("address", "", "Bluetooth `address` of the device to probe")
	autoConnect  = flag.Bool("auto", false, "Keep retrying until the device shows up")
	testDiscover = flag.Bool("discover", true, "Also test GATT service discovery")
)

type probe struct {
	connected  chan int
	discovered chan int
}

func (p *probe) OnConnectionStateChange(client *gatt.Client, status, newState int) {
	log.Info("%s: status=%d state=%d", client.Address(), status, newState)
	if newState == gatt.StateConnected || status != gatt.StatusSuccess {
		select {
		case p.connected <- status:
		default:
		}
	}
}

func (p *probe) OnServicesDiscovered(client *gatt.Client, status int) {
	p.discovered <- status
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	config, err := cli.NewConfig(cli.FlagBLE)
	if err != nil {
		log.Error("Failed to load configuration: %s", err)
		return
	}
	config.RegisterCommandLineFlags()
	flag.Parse()
	log.SetLevel(log.LevelDebug)
	if err := config.Load(); err != nil {
		log.Error("Failed to load configuration: %s", err)
		return
	}

	adapter, err := config.NewAdapter()
	if err != nil {
		log.Error("Failed to initialize BLE adapter: %s", ble.AdapterErrorHelpMessage(err))
		return
	}
	defer adapter.Close()
	log.Info("BLE adapter initialized (backend %s)", config.Backend)

	if *address == "" {
		status = 0
		return
	}

	connector := gatt.NewConnector(adapter)
	connector.ConnectTimeout = config.ConnectTimeout
	defer connector.Close()

	p := &probe{connected: make(chan int, 1), discovered: make(chan int, 1)}
	client, err := connector.Connect(*address, *autoConnect, p)
	if err != nil {
		log.Error("Invalid address: %s", err)
		return
	}
	defer client.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	select {
	case result := <-p.connected:
		if result != gatt.StatusSuccess {
			log.Error("Connection to %s failed", client.Address())
			return
		}
	case <-interrupt:
		log.Info("Interrupted")
		return
	}
	if !*testDiscover {
		status = 0
		return
	}

	if !client.DiscoverServices() {
		log.Error("Service discovery refused")
		return
	}
	select {
	case result := <-p.discovered:
		if result != gatt.StatusSuccess {
			log.Error("Service discovery failed")
			return
		}
	case <-time.After(connector.DiscoveryTimeout + time.Second):
		log.Error("Service discovery did not complete")
		return
	case <-interrupt:
		log.Info("Interrupted")
		return
	}
	for _, service := range client.Services() {
		fmt.Printf("%s (handle 0x%04x)\n", service.UUID, service.Handle)
		for _, characteristic := range service.Characteristics {
			fmt.Printf("    %s %s\n", characteristic.UUID, characteristic.Properties)
		}
	}
	status = 0
}
