package geocode

import (
	"fmt"
	"strings"

	"github.com/adrianmo/go-nmea"
)

// Coordinates is a WGS84 position
type Coordinates struct {
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
}

// ParseNMEA extracts a position from a GGA or RMC sentence as emitted by GPS receivers
func ParseNMEA(sentence string) (Coordinates, error) {
	s, err := nmea.Parse(strings.TrimSpace(sentence))
	if err != nil {
		return Coordinates{}, fmt.Errorf("invalid NMEA sentence: %w", err)
	}

	switch m := s.(type) {
	case nmea.GGA:
		if m.FixQuality == nmea.Invalid {
			return Coordinates{}, fmt.Errorf("GGA sentence has no position fix")
		}
		return Coordinates{Latitude: m.Latitude, Longitude: m.Longitude}, nil
	case nmea.RMC:
		if m.Validity != nmea.ValidRMC {
			return Coordinates{}, fmt.Errorf("RMC sentence is not valid (status %q)", m.Validity)
		}
		return Coordinates{Latitude: m.Latitude, Longitude: m.Longitude}, nil
	default:
		return Coordinates{}, fmt.Errorf("unsupported NMEA sentence type %s", s.DataType())
	}
}
