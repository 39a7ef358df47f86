package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/sirupsen/logrus"
	"golang.org/x/image/font/gofont/goregular"

	"gps_flyover_video/internal/animation"
	"gps_flyover_video/internal/camera"
	"gps_flyover_video/internal/config"
	"gps_flyover_video/internal/journey"
	"gps_flyover_video/internal/live"
	"gps_flyover_video/internal/metrics"
	"gps_flyover_video/internal/surface"
	"gps_flyover_video/internal/track"
	"gps_flyover_video/internal/units"
)

const (
	videoTail       = 2 * time.Second
	liveFramerate   = 60
	firstFrameImage = "first_frame.png"
)

var ErrNoInput = errors.New("at least one -gpx or -fit input is required")

// --- Main Logic ---

func main() {
	args := parseArguments()

	log, err := newLogger(args.LogLevel, args.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, args, log); err != nil {
		log.WithError(err).Fatal("Flyover failed")
	}
}

func run(ctx context.Context, args *Arguments, log *logrus.Logger) error {
	cfg, err := config.Load(args.ConfigFile)
	if err != nil {
		return err
	}
	if err := args.applyTo(cfg); err != nil {
		return err
	}
	if len(args.Inputs) == 0 {
		return ErrNoInput
	}

	if args.MetricsAddr != "" && args.ServeAddr == "" {
		srv := metrics.Serve(args.MetricsAddr, log)
		defer srv.Close()
	}

	j, err := loadJourney(args, cfg, log)
	if err != nil {
		return err
	}
	animOpts := cfg.AnimationOptions()
	camCfg := cfg.CameraConfig()
	camCfg.TileSize = args.TileSize

	if args.Debug {
		printJourney(os.Stdout, j, cfg.UnitSystem())
		return nil
	}

	if args.GeoJSONFile != "" {
		if err := exportGeoJSON(args.GeoJSONFile, j, animOpts); err != nil {
			return err
		}
		log.WithField("file", args.GeoJSONFile).Info("GeoJSON exported")
		return nil
	}

	if args.ServeAddr != "" {
		return serveLive(ctx, args.ServeAddr, j, camCfg, animOpts, log)
	}

	font, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return err
	}

	store, err := newTileStore(tileStoreOptions{
		Style:         cfg.Tiles.Style,
		CacheDir:      cfg.Tiles.CacheDir,
		Retina:        cfg.Tiles.Retina,
		APIKey:        cfg.Tiles.APIKey,
		RatePerSecond: cfg.Tiles.RatePerSecond,
		Brightness:    args.MapBrightness,
		Contrast:      args.MapContrast,
	}, log)
	if err != nil {
		return err
	}

	r := &renderer{
		store:          store,
		width:          cfg.Video.Width,
		height:         cfg.Video.Height,
		pathWidth:      args.PathWidth,
		indicatorColor: args.IndicatorColor,
		units:          cfg.UnitSystem(),
		totalDistance:  j.TotalDistance(),
		font:           font,
		log:            log,
	}
	newEng := func() (*engine, error) {
		return newEngine(j, camCfg, animOpts, surface.NopPrefetcher, log)
	}

	if args.RenderFirstFrame {
		log.Info("Rendering first frame only")
		e, err := newEng()
		if err != nil {
			return err
		}
		e.player.Start()
		img := r.renderFrame(ctx, e.surface.Snapshot(0, e.clock.Now()))
		if err := gg.SavePNG(firstFrameImage, img); err != nil {
			return err
		}
		log.WithField("file", firstFrameImage).Info("Saved first frame")
		return nil
	}

	// --- Prefetch & Cache Tiles ---
	prefetcher := newTilePrefetcher(ctx, store, cfg.Video.Width, cfg.Video.Height, camCfg.MaxPitch, cfg.Tiles.Concurrency, log)
	allTiles, totalFrames, err := collectTiles(j, camCfg, animOpts, prefetcher, cfg.Video.Framerate, videoTail, cfg.Video.Width, cfg.Video.Height, store.TileSize(), log)
	prefetcher.Close()
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"frames":   totalFrames,
		"duration": time.Duration(float64(totalFrames) / cfg.Video.Framerate * float64(time.Second)),
	}).Info("Animation planned")

	if err := prefetchTiles(ctx, store, allTiles, cfg.Tiles.Concurrency, log); err != nil {
		return err
	}

	err = runVideoPipeline(ctx, newEng, totalFrames, r, videoOptions{
		OutputFile: args.OutputFile,
		Framerate:  cfg.Video.Framerate,
		Bitrate:    cfg.Video.Bitrate,
		Workers:    cfg.Video.Workers,
		Tail:       videoTail,
	}, log)
	if err != nil {
		return err
	}

	log.WithField("file", args.OutputFile).Info("Video saved")
	return nil
}

// loadJourney reads every input in order and joins them with the requested
// transport legs.
func loadJourney(args *Arguments, cfg *config.Config, log logrus.FieldLogger) (*journey.Journey, error) {
	if len(args.Transports) > 0 && len(args.Transports) != len(args.Inputs)-1 {
		return nil, fmt.Errorf("got %d -transport values for %d inputs, want %d", len(args.Transports), len(args.Inputs), len(args.Inputs)-1)
	}
	if (args.From != "" || args.To != "") && len(args.Inputs) > 1 {
		return nil, errors.New("-from and -to need a single input")
	}

	var parts []journey.Part
	for i, in := range args.Inputs {
		if i > 0 && len(args.Transports) > 0 {
			mode := strings.TrimSpace(args.Transports[i-1])
			if mode != "" && !strings.EqualFold(mode, "none") {
				m, err := journey.ParseTransportMode(mode)
				if err != nil {
					return nil, err
				}
				parts = append(parts, journey.Part{Transport: m})
			}
		}

		t, err := loadActivity(in, args.MaxEleStep, log)
		if err != nil {
			return nil, err
		}
		t, err = cutTrack(t, args.From, args.To, log)
		if err != nil {
			return nil, err
		}
		parts = append(parts, journey.Part{Track: t})
	}

	return journey.Assemble(parts, cfg.AssembleOptions())
}

func printJourney(w io.Writer, j *journey.Journey, u units.System) {
	for li, leg := range j.Legs() {
		label := leg.Kind.String()
		if leg.Kind == journey.KindTransport {
			label += " (" + string(leg.Mode) + ")"
		}
		fmt.Fprintf(w, "Leg %d: %s, %d points, %s\n", li, label, leg.Track.Len(), u.FormatDistance(leg.Track.Stats().TotalDistance))

		var t0 time.Time
		if leg.Track.Len() > 0 {
			t0 = leg.Track.Start().Time
		}
		for i, p := range leg.Track.Points() {
			fmt.Fprintf(w, "Point %d: Time %v, Dist %s, Speed %s, Ele %s, HR %.0f\n",
				leg.Offset+i, pointOffset(p, t0), u.FormatDistance(p.Distance+leg.DistanceOffset), u.FormatSpeed(p.Speed), u.FormatElevation(p.Elevation), p.HeartRate)
		}
	}
	fmt.Fprintf(w, "Total: %s over %v\n", u.FormatDistance(j.TotalDistance()), j.Duration())
}

func pointOffset(p track.Point, t0 time.Time) time.Duration {
	if p.Time.IsZero() || t0.IsZero() {
		return 0
	}
	return p.Time.Sub(t0)
}

// serveLive runs the player in real time and streams it to WebSocket clients
// until ctx is cancelled.
func serveLive(ctx context.Context, addr string, j *journey.Journey, camCfg camera.Config, opts animation.Options, log logrus.FieldLogger) error {
	hub := live.NewHub(log)
	sched := live.NewScheduler(liveFramerate)
	env := surface.Env{Surface: hub, Scheduler: sched, Log: log}

	cam, err := camera.New(env, camCfg)
	if err != nil {
		return err
	}
	player, err := animation.NewPlayer(env, cam, opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	loaded := make(chan error, 1)
	sched.Do(func() {
		loaded <- player.LoadJourney(j)
	})
	if err := <-loaded; err != nil {
		return err
	}
	hub.Attach(player, sched)

	srv := live.NewServer(addr, hub)
	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("Serving live animation")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		cancel()
		<-schedDone
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	err = srv.Shutdown(shutdownCtx)
	<-schedDone
	log.Info("Live server stopped")
	return err
}
