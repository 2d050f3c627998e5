package tinygo

import (
	"fmt"

	"tinygo.org/x/bluetooth"

	"github.com/blesnip/leaudio-snippet/pkg/connector/ble"
)

func adapterHelp(_ error) string {
	return ""
}

// WinRT only exposes the default radio.
func newAdapter(id string) (*bluetooth.Adapter, error) {
	if id != "" {
		return nil, ble.ErrAdapterInvalidID
	}
	return bluetooth.DefaultAdapter, nil
}

func parseAddress(address string) (bluetooth.Address, error) {
	mac, err := bluetooth.ParseMAC(address)
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("ble: invalid MAC address '%s': %s", address, err)
	}
	var addr bluetooth.Address
	addr.MAC = mac
	return addr, nil
}
