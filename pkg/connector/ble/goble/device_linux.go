package goble

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	goble "github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"
	"github.com/go-ble/ble/linux/hci/cmd"

	"github.com/blesnip/leaudio-snippet/pkg/connector/ble"
)

const bleTimeout = 20 * time.Second

var scanParams = cmd.LESetScanParameters{
	LEScanType:           1,    // Active scanning
	LEScanInterval:       0x10, // 10ms
	LEScanWindow:         0x10, // 10ms
	OwnAddressType:       0,    // Static
	ScanningFilterPolicy: 0,    // Accept all advertisements
}

// adapterHelp explains HCI socket failures. Other errors yield an empty string.
func adapterHelp(err error) string {
	msg := err.Error()
	if !strings.Contains(msg, "can't init hci") &&
		!strings.Contains(msg, "operation not permitted") &&
		!strings.Contains(msg, "no such device") {
		return ""
	}
	return "Failed to initialize HCI device: \n\t" + msg + "\n" +
		"The go-ble backend opens a raw HCI socket. Run with CAP_NET_ADMIN and CAP_NET_RAW\n" +
		"(e.g. setcap 'cap_net_raw,cap_net_admin+eip' <binary>) and make sure bluetoothd is not\n" +
		"holding the adapter (hciconfig hci0 down), or use the tinygo backend instead."
}

// parseDeviceID accepts "hci1" or "1".
func parseDeviceID(id string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "hci"))
	if err != nil || n < 0 {
		return 0, ble.ErrAdapterInvalidID
	}
	return n, nil
}

func newDevice(id string) (goble.Device, error) {
	opts := []goble.Option{
		goble.OptListenerTimeout(bleTimeout),
		goble.OptDialerTimeout(bleTimeout),
		goble.OptScanParams(scanParams),
	}
	if id != "" {
		n, err := parseDeviceID(id)
		if err != nil {
			return nil, err
		}
		opts = append(opts, goble.OptDeviceID(n))
	}

	device, err := linux.NewDevice(opts...)
	if err != nil {
		return nil, fmt.Errorf("can't init hci: %w", err)
	}
	return device, nil
}
