package tinygo

import (
	"fmt"

	"tinygo.org/x/bluetooth"

	"github.com/blesnip/leaudio-snippet/pkg/connector/ble"
)

func adapterHelp(_ error) string {
	return "Check that Bluetooth is powered on and that the terminal has been granted Bluetooth " +
		"access under System Settings > Privacy & Security."
}

func newAdapter(id string) (*bluetooth.Adapter, error) {
	if id != "" {
		return nil, ble.ErrAdapterInvalidID
	}
	return bluetooth.DefaultAdapter, nil
}

// CoreBluetooth identifies peripherals by UUID rather than MAC address.
func parseAddress(address string) (bluetooth.Address, error) {
	uuid, err := bluetooth.ParseUUID(address)
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("ble: invalid peripheral UUID '%s': %s", address, err)
	}
	var addr bluetooth.Address
	addr.UUID = uuid
	return addr, nil
}
