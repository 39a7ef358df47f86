package main

import (
	"flag"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"

	"gps_flyover_video/internal/config"
	"gps_flyover_video/internal/hrcolor"
)

// --- Structs ---

type inputKind string

const (
	inputGpx inputKind = "gpx"
	inputFit inputKind = "fit"
)

type activityInput struct {
	Kind inputKind
	Path string
}

// inputList keeps -gpx and -fit arguments in command line order.
type inputList struct {
	kind   inputKind
	inputs *[]activityInput
}

func (l inputList) String() string {
	if l.inputs == nil {
		return ""
	}
	parts := make([]string, 0, len(*l.inputs))
	for _, in := range *l.inputs {
		parts = append(parts, in.Path)
	}
	return strings.Join(parts, ",")
}

func (l inputList) Set(path string) error {
	*l.inputs = append(*l.inputs, activityInput{Kind: l.kind, Path: path})
	return nil
}

type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type Arguments struct {
	Inputs     []activityInput
	Transports stringList
	ConfigFile string
	OutputFile string

	VideoWidth  int
	VideoHeight int
	Bitrate     string
	Workers     int
	Framerate   float64

	MapStyle      string
	Is2x          bool
	TileSize      int
	MapBrightness float64
	MapContrast   float64

	PathWidth      float64
	IndicatorColor color.Color

	Preset     string
	Speed      float64
	ColorMode  string
	MaxHR      float64
	Units      string
	Cinematic  bool
	From       string
	To         string
	MaxEleStep float64

	RenderFirstFrame bool
	Debug            bool
	GeoJSONFile      string
	ServeAddr        string
	MetricsAddr      string
	LogLevel         string
	LogFormat        string

	// set holds the flag names given on the command line.
	set map[string]bool
}

// --- Argument Parsing ---

func parseArguments() *Arguments {
	return parseArgumentsFrom(flag.CommandLine, os.Args[1:])
}

func parseArgumentsFrom(fs *flag.FlagSet, argv []string) *Arguments {
	args := &Arguments{}
	var indicatorColorStr string
	noCinematic := false

	fs.Var(inputList{kind: inputGpx, inputs: &args.Inputs}, "gpx", "Path to a GPX file. Repeat to join several activities.")
	fs.Var(inputList{kind: inputFit, inputs: &args.Inputs}, "fit", "Path to a FIT file. Repeat to join several activities.")
	fs.Var(&args.Transports, "transport", "Transport leg between consecutive activities (walk, bike, car, train, boat, plane, none). Repeat once per gap.")
	fs.StringVar(&args.ConfigFile, "config", "", "Optional YAML config file.")
	fs.StringVar(&args.OutputFile, "o", "flyover.mp4", "Output video file name.")
	fs.IntVar(&args.VideoWidth, "width", 1920, "Video width in pixels.")
	fs.IntVar(&args.VideoHeight, "height", 1080, "Video height in pixels.")
	fs.StringVar(&args.Bitrate, "bitrate", "8M", "Video bitrate (e.g., 5M).")
	fs.IntVar(&args.Workers, "workers", runtime.NumCPU(), "Number of parallel workers for frame generation.")
	fs.Float64Var(&args.Framerate, "framerate", 30, "Video framerate.")
	fs.StringVar(&args.MapStyle, "style", "default", "Map style (e.g., default, cyclosm, toner, positron).")
	fs.BoolVar(&args.Is2x, "2x", true, "Use 2x tiles.")
	fs.Float64Var(&args.MapBrightness, "map-brightness", 0, "Map brightness adjustment in [-1,1].")
	fs.Float64Var(&args.MapContrast, "map-contrast", 1, "Map contrast multiplier.")
	fs.Float64Var(&args.PathWidth, "path-width", 8, "Width of the drawn trail.")
	fs.StringVar(&indicatorColorStr, "indicator-color", "#FFFFFF", "Color of the text indicators (hex).")
	fs.StringVar(&args.Preset, "preset", "medium", "Follow camera preset (close, medium, far).")
	fs.Float64Var(&args.Speed, "speed", 1, "Playback speed multiplier.")
	fs.StringVar(&args.ColorMode, "color-mode", "fixed", "Trail coloring: fixed or heartRate.")
	fs.Float64Var(&args.MaxHR, "max-hr", 190, "Maximum heart rate used to build the zone table.")
	fs.StringVar(&args.Units, "units", "metric", "Unit system for the HUD: metric or imperial.")
	fs.BoolVar(&noCinematic, "no-cinematic", false, "Skip the cinematic start sequence.")
	fs.StringVar(&args.From, "from", "", "Cut start boundary, e.g. 120s or 2.5km.")
	fs.StringVar(&args.To, "to", "", "Cut end boundary, e.g. 900s or 12km.")
	fs.Float64Var(&args.MaxEleStep, "max-ele-step", 0, "Drop elevation jumps larger than this many meters between points (0 = off).")
	fs.BoolVar(&args.RenderFirstFrame, "render-first-frame", false, "Render only the first frame and save as first_frame.png.")
	fs.BoolVar(&args.Debug, "debug", false, "Print the processed track and exit.")
	fs.StringVar(&args.GeoJSONFile, "geojson", "", "Export the colored trail as GeoJSON to this file and exit.")
	fs.StringVar(&args.ServeAddr, "serve", "", "Serve the animation live over WebSocket on this address instead of rendering a video.")
	fs.StringVar(&args.MetricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address.")
	fs.StringVar(&args.LogLevel, "log-level", "info", "Log level (debug, info, warn, error).")
	fs.StringVar(&args.LogFormat, "log-format", "text", "Log format (text or json).")

	fs.Parse(argv)

	args.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		args.set[f.Name] = true
	})

	args.Cinematic = !noCinematic
	args.IndicatorColor, _ = parseHexColor(indicatorColorStr)

	if args.Is2x {
		args.TileSize = 512
	} else {
		args.TileSize = 256
	}

	return args
}

// applyTo overlays flags given on the command line onto cfg. File and
// environment values win over flag defaults.
func (a *Arguments) applyTo(cfg *config.Config) error {
	if a.set["width"] {
		cfg.Video.Width = a.VideoWidth
	}
	if a.set["height"] {
		cfg.Video.Height = a.VideoHeight
	}
	if a.set["framerate"] {
		cfg.Video.Framerate = a.Framerate
	}
	if a.set["bitrate"] {
		cfg.Video.Bitrate = a.Bitrate
	}
	if a.set["workers"] || cfg.Video.Workers <= 0 {
		cfg.Video.Workers = a.Workers
	}
	if a.set["style"] {
		cfg.Tiles.Style = a.MapStyle
	}
	if a.set["2x"] {
		cfg.Tiles.Retina = a.Is2x
	}
	if a.set["preset"] {
		cfg.Camera.Preset = a.Preset
	}
	if a.set["speed"] {
		cfg.Playback.Speed = a.Speed
	}
	if a.set["color-mode"] {
		cfg.HR.ColorMode = a.ColorMode
	}
	if a.set["max-hr"] {
		cfg.HR.MaxHR = a.MaxHR
		cfg.HR.Zones = nil
	}
	if a.set["units"] {
		cfg.Units = a.Units
	}
	if a.set["no-cinematic"] {
		cfg.Camera.Cinematic = a.Cinematic
	}
	if len(cfg.HR.Zones) == 0 {
		cfg.HR.Zones = hrcolor.ZonesFromMaxHR(cfg.HR.MaxHR)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.Is2x = cfg.Tiles.Retina
	if a.Is2x {
		a.TileSize = 512
	} else {
		a.TileSize = 256
	}
	return nil
}

func newLogger(level, format string) (*logrus.Logger, error) {
	logger := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logger.SetLevel(lvl)
	switch format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
	return logger, nil
}

func parseHexColor(s string) (color.Color, error) {
	var r, g, b uint8
	_, err := fmt.Sscanf(s, "#%02x%02x%02x", &r, &g, &b)
	if err != nil {
		return color.Black, err
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

func inputFormat(path string) inputKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".fit":
		return inputFit
	default:
		return inputGpx
	}
}
