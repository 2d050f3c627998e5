package ble

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// baseUUIDSuffix completes 16- and 32-bit assigned numbers into the Bluetooth Base UUID.
const baseUUIDSuffix = "-0000-1000-8000-00805f9b34fb"

// CanonicalUUID converts a 16-bit, 32-bit or 128-bit UUID string (with or without dashes, any case)
// into the lowercase dashed 128-bit form, e.g. "184e" -> "0000184e-0000-1000-8000-00805f9b34fb".
func CanonicalUUID(uuid string) (string, error) {
	raw := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(uuid), "-", ""))
	raw = strings.TrimPrefix(raw, "0x")
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("ble: invalid uuid '%s'", uuid)
	}
	switch len(raw) {
	case 4:
		return "0000" + raw + baseUUIDSuffix, nil
	case 8:
		return raw + baseUUIDSuffix, nil
	case 32:
		return raw[:8] + "-" + raw[8:12] + "-" + raw[12:16] + "-" + raw[16:20] + "-" + raw[20:], nil
	}
	return "", fmt.Errorf("ble: invalid uuid '%s'", uuid)
}

// UUIDFromLittleEndian formats a UUID received over the air (little-endian byte order) in
// canonical form.
func UUIDFromLittleEndian(b []byte) (string, error) {
	reversed := make([]byte, len(b))
	for i := range b {
		reversed[len(b)-1-i] = b[i]
	}
	return CanonicalUUID(hex.EncodeToString(reversed))
}
