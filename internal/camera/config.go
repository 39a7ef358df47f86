package camera

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	ErrUnknownPreset = errors.New("unknown camera preset")
	ErrInvalidConfig = errors.New("invalid camera config")
)

// Preset is the baseline zoom and pitch the terrain adjustment moves around.
type Preset struct {
	Name  string  `mapstructure:"name"`
	Zoom  float64 `mapstructure:"zoom"`
	Pitch float64 `mapstructure:"pitch"`
}

type Config struct {
	Presets       []Preset
	DefaultPreset string

	// Terrain adjustments stay within preset +/- envelope.
	ZoomEnvelope  float64
	PitchEnvelope float64
	MinZoom       float64
	MaxZoom       float64
	MinPitch      float64
	MaxPitch      float64

	LookAhead []float64 // progress fractions
	Weights   []float64

	RiskElevation     float64 // metres at which elevation alone is full risk
	SlopeRisk         float64
	RiskZoomDrop      float64
	RiskPitchDrop     float64
	AscentPitchDrop   float64 // applied in full at AscentFullSlope
	AscentFullSlope   float64
	DescentPitchRaise float64
	SharpDescent      float64 // slope below -SharpDescent raises pitch

	BearingSpeed   float64
	ZoomSpeed      float64
	PitchSpeed     float64
	MaxBearingStep float64 // degrees per frame

	CinematicDuration time.Duration
	ZoomOutDelay      time.Duration
	ZoomOutDuration   time.Duration

	ViewportWidth  int
	ViewportHeight int
	ViewportPad    int
	TileSize       int
}

func DefaultConfig() Config {
	return Config{
		Presets: []Preset{
			{Name: "close", Zoom: 16, Pitch: 60},
			{Name: "medium", Zoom: 15, Pitch: 55},
			{Name: "far", Zoom: 13.5, Pitch: 45},
		},
		DefaultPreset: "medium",

		ZoomEnvelope:  1.5,
		PitchEnvelope: 15,
		MinZoom:       2,
		MaxZoom:       18,
		MinPitch:      0,
		MaxPitch:      75,

		LookAhead: []float64{0.002, 0.005, 0.01},
		Weights:   []float64{0.5, 0.3, 0.2},

		RiskElevation:     3000,
		SlopeRisk:         8,
		RiskZoomDrop:      1.5,
		RiskPitchDrop:     12,
		AscentPitchDrop:   6,
		AscentFullSlope:   0.12,
		DescentPitchRaise: 4,
		SharpDescent:      0.08,

		BearingSpeed:   3.0,
		ZoomSpeed:      1.5,
		PitchSpeed:     0.8,
		MaxBearingStep: 20,

		CinematicDuration: 3 * time.Second,
		ZoomOutDelay:      1500 * time.Millisecond,
		ZoomOutDuration:   3 * time.Second,

		ViewportWidth:  1920,
		ViewportHeight: 1080,
		ViewportPad:    60,
		TileSize:       256,
	}
}

// Validate checks the preset table and the look-ahead weights.
func (c Config) Validate() error {
	if len(c.Presets) == 0 {
		return fmt.Errorf("%w: no presets", ErrInvalidConfig)
	}
	seen := make(map[string]bool, len(c.Presets))
	for _, p := range c.Presets {
		name := strings.ToLower(p.Name)
		if name == "" {
			return fmt.Errorf("%w: preset without a name", ErrInvalidConfig)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate preset %q", ErrInvalidConfig, p.Name)
		}
		seen[name] = true
	}
	if _, err := c.Preset(c.DefaultPreset); err != nil {
		return err
	}
	if len(c.LookAhead) == 0 || len(c.LookAhead) != len(c.Weights) {
		return fmt.Errorf("%w: look-ahead and weights must be non-empty and of equal length", ErrInvalidConfig)
	}
	if c.MinZoom > c.MaxZoom || c.MinPitch > c.MaxPitch {
		return fmt.Errorf("%w: inverted zoom or pitch limits", ErrInvalidConfig)
	}
	if c.BearingSpeed <= 0 || c.ZoomSpeed <= 0 || c.PitchSpeed <= 0 {
		return fmt.Errorf("%w: smoothing speeds must be positive", ErrInvalidConfig)
	}
	return nil
}

// Preset looks a preset up by case-insensitive name.
func (c Config) Preset(name string) (Preset, error) {
	for _, p := range c.Presets {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("%w: %q (have %s)", ErrUnknownPreset, name, strings.Join(c.PresetNames(), ", "))
}

func (c Config) PresetNames() []string {
	names := make([]string, len(c.Presets))
	for i, p := range c.Presets {
		names[i] = p.Name
	}
	sort.Strings(names)
	return names
}
