package ble

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	macAddressRE   = regexp.MustCompile(`^[0-9A-F]{2}(:[0-9A-F]{2}){5}$`)
	peripheralIDRE = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// NormalizeAddress validates a remote device address and returns it in canonical form.
//
// Linux and Windows identify peers by MAC address ("AA:BB:CC:DD:EE:FF", returned upper-case).
// CoreBluetooth hides MAC addresses and uses per-host peripheral UUIDs instead, which are accepted
// and returned lower-case.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if mac := strings.ToUpper(address); macAddressRE.MatchString(mac) {
		return mac, nil
	}
	if id := strings.ToLower(address); peripheralIDRE.MatchString(id) {
		return id, nil
	}
	return "", fmt.Errorf("%w: '%s'", ErrInvalidAddress, address)
}
