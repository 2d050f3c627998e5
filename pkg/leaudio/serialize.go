package leaudio

import (
	"github.com/blesnip/leaudio-snippet/pkg/connector/ble"
	"github.com/blesnip/leaudio-snippet/pkg/event"
)

const (
	serviceTypePrimary   = "SERVICE_TYPE_PRIMARY"
	serviceTypeSecondary = "SERVICE_TYPE_SECONDARY"
)

func serializeServices(services []ble.Service) []event.Bundle {
	bundles := make([]event.Bundle, 0, len(services))
	for _, s := range services {
		bundles = append(bundles, serializeService(s))
	}
	return bundles
}

func serializeService(s ble.Service) event.Bundle {
	serviceType := serviceTypeSecondary
	if s.Primary {
		serviceType = serviceTypePrimary
	}
	characteristics := make([]event.Bundle, 0, len(s.Characteristics))
	for _, c := range s.Characteristics {
		characteristics = append(characteristics, serializeCharacteristic(c))
	}
	return event.Bundle{
		"UUID":            s.UUID,
		"type":            serviceType,
		"characteristics": characteristics,
	}
}

func serializeCharacteristic(c ble.Characteristic) event.Bundle {
	return event.Bundle{
		"UUID":       c.UUID,
		"property":   c.Properties.String(),
		"permission": c.Permissions.String(),
		"instanceId": int(c.Handle),
	}
}
