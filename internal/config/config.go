// Package config loads playback, camera, heart-rate and video settings from
// an optional YAML file and FLYOVER_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"gps_flyover_video/internal/animation"
	"gps_flyover_video/internal/camera"
	"gps_flyover_video/internal/hrcolor"
	"gps_flyover_video/internal/journey"
	"gps_flyover_video/internal/units"
)

const EnvPrefix = "FLYOVER"

type Config struct {
	Video    VideoConfig    `mapstructure:"video"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Camera   CameraConfig   `mapstructure:"camera"`
	HR       HRConfig       `mapstructure:"hr"`
	Trail    TrailConfig    `mapstructure:"trail"`
	Tiles    TilesConfig    `mapstructure:"tiles"`
	Units    string         `mapstructure:"units"`
}

type VideoConfig struct {
	Width     int     `mapstructure:"width"`
	Height    int     `mapstructure:"height"`
	Framerate float64 `mapstructure:"framerate"`
	Bitrate   string  `mapstructure:"bitrate"`
	Workers   int     `mapstructure:"workers"`
}

type PlaybackConfig struct {
	SecondsPerKm     float64       `mapstructure:"seconds_per_km"`
	MinTrackDuration time.Duration `mapstructure:"min_track_duration"`
	MaxTrackDuration time.Duration `mapstructure:"max_track_duration"`
	Speed            float64       `mapstructure:"speed"`
	LookAhead        time.Duration `mapstructure:"look_ahead"`
}

type CameraConfig struct {
	Preset            string          `mapstructure:"preset"`
	Cinematic         bool            `mapstructure:"cinematic"`
	CinematicDuration time.Duration   `mapstructure:"cinematic_duration"`
	ZoomOutDelay      time.Duration   `mapstructure:"zoom_out_delay"`
	ZoomOutDuration   time.Duration   `mapstructure:"zoom_out_duration"`
	Presets           []camera.Preset `mapstructure:"presets"`
}

type HRConfig struct {
	ColorMode string         `mapstructure:"color_mode"`
	ChunkSize int            `mapstructure:"chunk_size"`
	MaxHR     float64        `mapstructure:"max_hr"`
	Zones     []hrcolor.Zone `mapstructure:"zones"`
}

type TrailConfig struct {
	Color          string `mapstructure:"color"`
	TransportColor string `mapstructure:"transport_color"`
}

type TilesConfig struct {
	Style         string  `mapstructure:"style"`
	CacheDir      string  `mapstructure:"cache_dir"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Concurrency   int     `mapstructure:"concurrency"`
	Retina        bool    `mapstructure:"retina"`
	APIKey        string  `mapstructure:"api_key"`
}

func setDefaults(v *viper.Viper) {
	cam := camera.DefaultConfig()
	asm := journey.DefaultAssembleOptions()
	anim := animation.DefaultOptions()

	v.SetDefault("video.width", cam.ViewportWidth)
	v.SetDefault("video.height", cam.ViewportHeight)
	v.SetDefault("video.framerate", 30.0)
	v.SetDefault("video.bitrate", "8M")
	v.SetDefault("video.workers", 0)

	v.SetDefault("playback.seconds_per_km", asm.SecondsPerKm)
	v.SetDefault("playback.min_track_duration", asm.MinTrackDuration)
	v.SetDefault("playback.max_track_duration", asm.MaxTrackDuration)
	v.SetDefault("playback.speed", anim.Speed)
	v.SetDefault("playback.look_ahead", anim.LookAhead)

	v.SetDefault("camera.preset", cam.DefaultPreset)
	v.SetDefault("camera.cinematic", anim.Cinematic)
	v.SetDefault("camera.cinematic_duration", cam.CinematicDuration)
	v.SetDefault("camera.zoom_out_delay", cam.ZoomOutDelay)
	v.SetDefault("camera.zoom_out_duration", cam.ZoomOutDuration)

	v.SetDefault("hr.color_mode", anim.ColorMode.String())
	v.SetDefault("hr.chunk_size", hrcolor.DefaultChunkSize)
	v.SetDefault("hr.max_hr", hrcolor.DefaultMaxHR)

	v.SetDefault("trail.color", anim.TrailColor)
	v.SetDefault("trail.transport_color", anim.TransportColor)

	v.SetDefault("tiles.style", "thunderforest")
	v.SetDefault("tiles.cache_dir", "tiles")
	v.SetDefault("tiles.rate_per_second", 10.0)
	v.SetDefault("tiles.concurrency", 8)
	v.SetDefault("tiles.retina", true)
	v.SetDefault("tiles.api_key", "")

	v.SetDefault("units", units.Metric.String())
}

// Load reads path when it is not empty, then applies FLYOVER_* environment
// overrides, e.g. FLYOVER_VIDEO_FRAMERATE.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if len(cfg.Camera.Presets) == 0 {
		cfg.Camera.Presets = camera.DefaultConfig().Presets
	}
	if len(cfg.HR.Zones) == 0 {
		cfg.HR.Zones = hrcolor.ZonesFromMaxHR(cfg.HR.MaxHR)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the loaded values and that they convert cleanly.
func (c *Config) Validate() error {
	if c.Video.Width <= 0 || c.Video.Height <= 0 {
		return fmt.Errorf("video size must be positive, got %dx%d", c.Video.Width, c.Video.Height)
	}
	if c.Video.Framerate <= 0 {
		return fmt.Errorf("video framerate must be positive, got %v", c.Video.Framerate)
	}
	if c.Playback.Speed <= 0 {
		return fmt.Errorf("playback speed must be positive, got %v", c.Playback.Speed)
	}
	if c.Playback.SecondsPerKm <= 0 {
		return fmt.Errorf("playback seconds_per_km must be positive, got %v", c.Playback.SecondsPerKm)
	}
	if c.Playback.MaxTrackDuration > 0 && c.Playback.MinTrackDuration > c.Playback.MaxTrackDuration {
		return fmt.Errorf("playback min_track_duration %v exceeds max_track_duration %v",
			c.Playback.MinTrackDuration, c.Playback.MaxTrackDuration)
	}
	if c.HR.ChunkSize <= 0 {
		return fmt.Errorf("hr chunk_size must be positive, got %d", c.HR.ChunkSize)
	}
	if _, err := animation.ParseColorMode(c.HR.ColorMode); err != nil {
		return err
	}
	if err := hrcolor.ValidateZones(c.HR.Zones); err != nil {
		return err
	}
	if _, err := units.ParseSystem(c.Units); err != nil {
		return err
	}
	if c.Tiles.RatePerSecond < 0 {
		return fmt.Errorf("tiles rate_per_second must not be negative, got %v", c.Tiles.RatePerSecond)
	}
	return c.CameraConfig().Validate()
}

// CameraConfig overlays the loaded values onto the camera defaults.
func (c *Config) CameraConfig() camera.Config {
	cfg := camera.DefaultConfig()
	if len(c.Camera.Presets) > 0 {
		cfg.Presets = c.Camera.Presets
	}
	if c.Camera.Preset != "" {
		cfg.DefaultPreset = c.Camera.Preset
	}
	cfg.CinematicDuration = c.Camera.CinematicDuration
	cfg.ZoomOutDelay = c.Camera.ZoomOutDelay
	cfg.ZoomOutDuration = c.Camera.ZoomOutDuration
	cfg.ViewportWidth = c.Video.Width
	cfg.ViewportHeight = c.Video.Height
	return cfg
}

func (c *Config) AssembleOptions() journey.AssembleOptions {
	opts := journey.DefaultAssembleOptions()
	opts.SecondsPerKm = c.Playback.SecondsPerKm
	opts.MinTrackDuration = c.Playback.MinTrackDuration
	opts.MaxTrackDuration = c.Playback.MaxTrackDuration
	return opts
}

// AnimationOptions assumes Validate has passed.
func (c *Config) AnimationOptions() animation.Options {
	opts := animation.DefaultOptions()
	opts.Speed = c.Playback.Speed
	opts.LookAhead = c.Playback.LookAhead
	opts.Cinematic = c.Camera.Cinematic
	opts.TrailColor = c.Trail.Color
	opts.TransportColor = c.Trail.TransportColor
	opts.Zones = c.HR.Zones
	opts.ChunkSize = c.HR.ChunkSize
	opts.ColorMode, _ = animation.ParseColorMode(c.HR.ColorMode)
	opts.Assemble = c.AssembleOptions()
	return opts
}

func (c *Config) UnitSystem() units.System {
	s, _ := units.ParseSystem(c.Units)
	return s
}
