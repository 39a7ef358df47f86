// Package hrcolor colors a track by heart-rate zone.
package hrcolor

import (
	"errors"
	"fmt"
	"math"
)

const (
	NeutralColor     = "#9e9e9e"
	DefaultMaxHR     = 190
	DefaultChunkSize = 10
)

var ErrInvalidZones = errors.New("invalid heart rate zones")

// Zone is an inclusive [Min, Max] heart-rate range in bpm.
type Zone struct {
	Name  string  `mapstructure:"name"`
	Min   float64 `mapstructure:"min"`
	Max   float64 `mapstructure:"max"`
	Color string  `mapstructure:"color"`
}

var zoneColors = []string{"#3b82f6", "#22c55e", "#eab308", "#f97316", "#ef4444"}

// ZonesFromMaxHR builds the classic five zones at 50/60/70/80/90/100 % of
// the maximum heart rate.
func ZonesFromMaxHR(maxHR float64) []Zone {
	if maxHR <= 0 {
		maxHR = DefaultMaxHR
	}
	bounds := []float64{0.5, 0.6, 0.7, 0.8, 0.9, 1.0}
	zones := make([]Zone, 5)
	for i := range zones {
		lo := math.Round(bounds[i] * maxHR)
		if i > 0 {
			lo = zones[i-1].Max + 1
		}
		zones[i] = Zone{
			Name:  fmt.Sprintf("Z%d", i+1),
			Min:   lo,
			Max:   math.Round(bounds[i+1] * maxHR),
			Color: zoneColors[i],
		}
	}
	return zones
}

// ValidateZones requires a non-empty table sorted ascending with
// non-overlapping ranges.
func ValidateZones(zones []Zone) error {
	if len(zones) == 0 {
		return fmt.Errorf("%w: empty table", ErrInvalidZones)
	}
	for i, z := range zones {
		if z.Min > z.Max {
			return fmt.Errorf("%w: zone %d has min %.0f above max %.0f", ErrInvalidZones, i+1, z.Min, z.Max)
		}
		if z.Color == "" {
			return fmt.Errorf("%w: zone %d has no color", ErrInvalidZones, i+1)
		}
		if i > 0 && z.Min <= zones[i-1].Max {
			return fmt.Errorf("%w: zone %d overlaps or precedes zone %d", ErrInvalidZones, i+1, i)
		}
	}
	return nil
}

// ZoneIndex returns the zone for hr, or -1 when hr is absent. Values below
// or above the table clamp to the first or last zone; values in a gap
// between zones go to the nearer one.
func ZoneIndex(hr float64, zones []Zone) int {
	if hr <= 0 || math.IsNaN(hr) || len(zones) == 0 {
		return -1
	}
	if hr < zones[0].Min {
		return 0
	}
	for i, z := range zones {
		if hr <= z.Max {
			if hr >= z.Min {
				return i
			}
			// gap between zones[i-1] and zones[i]
			if hr-zones[i-1].Max <= z.Min-hr {
				return i - 1
			}
			return i
		}
	}
	return len(zones) - 1
}
