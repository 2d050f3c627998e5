package goble

import (
	goble "github.com/go-ble/ble"

	"github.com/blesnip/leaudio-snippet/internal/log"
	"github.com/blesnip/leaudio-snippet/pkg/connector/ble"
)

// convertProfile translates a go-ble profile into the backend-neutral model. go-ble only walks
// primary services, and stores UUIDs little-endian as received over the air.
func convertProfile(profile *goble.Profile) []ble.Service {
	if profile == nil {
		return nil
	}

	services := make([]ble.Service, 0, len(profile.Services))
	for _, s := range profile.Services {
		uuid, err := ble.UUIDFromLittleEndian(s.UUID)
		if err != nil {
			log.Warning("ble: skipping service with malformed uuid %x", []byte(s.UUID))
			continue
		}
		service := ble.Service{
			UUID:    uuid,
			Primary: true,
			Handle:  s.Handle,
		}
		for _, c := range s.Characteristics {
			characteristic, ok := convertCharacteristic(c)
			if ok {
				service.Characteristics = append(service.Characteristics, characteristic)
			}
		}
		services = append(services, service)
	}
	return services
}

func convertCharacteristic(c *goble.Characteristic) (ble.Characteristic, bool) {
	uuid, err := ble.UUIDFromLittleEndian(c.UUID)
	if err != nil {
		log.Warning("ble: skipping characteristic with malformed uuid %x", []byte(c.UUID))
		return ble.Characteristic{}, false
	}
	characteristic := ble.Characteristic{
		UUID:       uuid,
		Properties: ble.Property(c.Property),
		Handle:     c.ValueHandle,
	}
	for _, d := range c.Descriptors {
		if descriptor, err := ble.UUIDFromLittleEndian(d.UUID); err == nil {
			characteristic.Descriptors = append(characteristic.Descriptors, descriptor)
		}
	}
	return characteristic, true
}
