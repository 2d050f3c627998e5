package tinygo

import (
	"fmt"
	"strings"

	"tinygo.org/x/bluetooth"
)

// adapterHelp explains BlueZ setup problems. Other errors yield an empty string.
func adapterHelp(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "dbus") && strings.HasSuffix(msg, "no such file or directory"):
		return "The system D-Bus socket is missing. If running in a container, mount the host's " +
			"D-Bus socket (e.g. -v /var/run/dbus:/var/run/dbus)."
	case strings.Contains(msg, "The name org.bluez was not provided by any .service files"):
		return "bluetoothd is not running. Install bluez and start the bluetooth service; LE Audio " +
			"peripherals additionally need bluetoothd to run with --experimental."
	}
	return ""
}

func newAdapter(id string) (*bluetooth.Adapter, error) {
	if id == "" {
		return bluetooth.DefaultAdapter, nil
	}
	return bluetooth.NewAdapter(id), nil
}

// BlueZ accepts public and random addresses alike through the MAC field.
func parseAddress(address string) (bluetooth.Address, error) {
	mac, err := bluetooth.ParseMAC(address)
	if err != nil {
		return bluetooth.Address{}, fmt.Errorf("ble: invalid MAC address '%s': %s", address, err)
	}
	var addr bluetooth.Address
	addr.MAC = mac
	return addr, nil
}
