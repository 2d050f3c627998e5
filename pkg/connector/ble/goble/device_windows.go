package goble

import (
	"errors"

	goble "github.com/go-ble/ble"
)

func adapterHelp(_ error) string {
	return ""
}

func newDevice(_ string) (goble.Device, error) {
	return nil, errors.New("go-ble is not supported on Windows, use the tinygo backend")
}
