// Package units formats HUD values in the caller's unit system.
package units

import (
	"fmt"
	"strings"
	"time"
)

type System int

const (
	Metric System = iota
	Imperial
)

const (
	kmPerMile = 1.609344
	feetPerM  = 3.28084
)

func ParseSystem(s string) (System, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "metric", "km":
		return Metric, nil
	case "imperial", "mi", "miles":
		return Imperial, nil
	}
	return Metric, fmt.Errorf("unknown unit system %q", s)
}

func (s System) String() string {
	if s == Imperial {
		return "imperial"
	}
	return "metric"
}

// Distance converts km into the system's long distance unit.
func (s System) Distance(km float64) float64 {
	if s == Imperial {
		return km / kmPerMile
	}
	return km
}

func (s System) DistanceUnit() string {
	if s == Imperial {
		return "mi"
	}
	return "km"
}

func (s System) SpeedUnit() string {
	if s == Imperial {
		return "mph"
	}
	return "km/h"
}

func (s System) ElevationUnit() string {
	if s == Imperial {
		return "ft"
	}
	return "m"
}

func (s System) FormatDistance(km float64) string {
	d := s.Distance(km)
	if d < 10 {
		return fmt.Sprintf("%.2f %s", d, s.DistanceUnit())
	}
	return fmt.Sprintf("%.1f %s", d, s.DistanceUnit())
}

func (s System) FormatSpeed(kmh float64) string {
	return fmt.Sprintf("%.0f %s", s.Distance(kmh), s.SpeedUnit())
}

func (s System) FormatElevation(m float64) string {
	if s == Imperial {
		m *= feetPerM
	}
	return fmt.Sprintf("%.0f %s", m, s.ElevationUnit())
}

// FormatHeartRate renders "--" for an absent heart rate.
func FormatHeartRate(bpm float64) string {
	if bpm <= 0 {
		return "-- bpm"
	}
	return fmt.Sprintf("%.0f bpm", bpm)
}

// FormatDuration renders h:mm:ss, or m:ss under an hour.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second).Seconds())
	h, m, sec := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}
