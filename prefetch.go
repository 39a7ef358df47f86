package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mmcloughlin/geohash"
	"github.com/paulmach/orb"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	_ "golang.org/x/image/webp"
	"golang.org/x/time/rate"

	"gps_flyover_video/internal/geo"
	"gps_flyover_video/internal/metrics"
	"gps_flyover_video/internal/surface"
)

// --- Structs ---

type MapStyle struct {
	Name    string
	URL     string
	Headers map[string]string
	// DefaultKey fills {key} when no api key is configured.
	DefaultKey string
}

type Tile struct {
	X, Y, Z int
}

// wrapped folds X into [0, 2^Z) so views crossing the antimeridian reuse tiles.
func (t Tile) wrapped() Tile {
	n := 1 << t.Z
	t.X = ((t.X % n) + n) % n
	return t
}

var mapStyles = map[string]MapStyle{
	"default":       {Name: "default", URL: "https://tile.openstreetmap.org/{z}/{x}/{y}.png"},
	"cyclosm":       {Name: "cyclosm", URL: "https://c.tile-cyclosm.openstreetmap.fr/cyclosm/{z}/{x}/{y}.png"},
	"toner":         {Name: "toner", URL: "https://tiles.stadiamaps.com/tiles/stamen_toner/{z}/{x}/{y}.png", Headers: map[string]string{"Referer": "https://mc.bbbike.org/"}},
	"clockwork":     {Name: "clockwork", URL: "https://maps.clockworkmicro.com/streets/v1/raster/{z}/{x}/{y}?x-api-key={key}", DefaultKey: "2d33HqvhuU3z6lPsPOqQR6Zwl2LQ2pmo9NnWbboL"},
	"thunderforest": {Name: "thunderforest", URL: "https://tile.thunderforest.com/outdoors/{z}/{x}/{y}.png?apikey={key}", DefaultKey: "6170aad10dfd42a38d4d8c709a536f38"},
	"positron":      {Name: "positron", URL: "https://d.basemaps.cartocdn.com/light_all/{z}/{x}/{y}.png"},
	"outdoor":       {Name: "outdoor", URL: "https://api.maptiler.com/maps/outdoor-v2/256/{z}/{x}/{y}.png?key={key}", DefaultKey: "jsK0th32A1xWq2x6QeVu"},
}

var (
	ErrUnknownStyle      = errors.New("invalid map style")
	ErrRetinaUnsupported = errors.New("style does not support 2x tiles")
)

const (
	tileRequestTimeout = 10 * time.Second
	// minPitchCos caps the foreshortening near the horizon.
	minPitchCos = 0.25
)

type tileStoreOptions struct {
	Style         string
	CacheDir      string
	Retina        bool
	APIKey        string
	RatePerSecond float64
	Brightness    float64
	Contrast      float64
	Client        *http.Client
}

// TileStore looks tiles up in memory, then on disk, then downloads them
// under a shared rate limit.
type TileStore struct {
	style    MapStyle
	opts     tileStoreOptions
	tileSize int
	client   *http.Client
	limiter  *rate.Limiter
	log      logrus.FieldLogger

	mem sync.Map // tile path -> image.Image
}

func newTileStore(opts tileStoreOptions, log logrus.FieldLogger) (*TileStore, error) {
	style, ok := mapStyles[opts.Style]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStyle, opts.Style)
	}
	if opts.Contrast == 0 {
		opts.Contrast = 1
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: tileRequestTimeout}
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	tileSize := 256
	if opts.Retina {
		tileSize = 512
	}
	return &TileStore{
		style:    style,
		opts:     opts,
		tileSize: tileSize,
		client:   client,
		limiter:  rate.NewLimiter(limit, 1),
		log:      log.WithField("style", style.Name),
	}, nil
}

func (s *TileStore) TileSize() int {
	return s.tileSize
}

func (s *TileStore) path(t Tile) string {
	t = t.wrapped()
	tileName := fmt.Sprintf("%d.png", t.Y)
	if s.opts.Retina {
		tileName = fmt.Sprintf("%d@2x.png", t.Y)
	}
	return filepath.Join(s.opts.CacheDir, s.style.Name, strconv.Itoa(t.Z), strconv.Itoa(t.X), tileName)
}

func (s *TileStore) url(t Tile) string {
	t = t.wrapped()
	key := s.opts.APIKey
	if key == "" {
		key = s.style.DefaultKey
	}
	url := strings.NewReplacer(
		"{z}", strconv.Itoa(t.Z),
		"{x}", strconv.Itoa(t.X),
		"{y}", strconv.Itoa(t.Y),
		"{key}", key,
	).Replace(s.style.URL)
	if s.opts.Retina {
		if strings.Contains(url, "outdoor-v2/256") {
			url = strings.Replace(url, "outdoor-v2/256", "outdoor-v2", 1)
		} else {
			url = strings.Replace(url, ".png", "@2x.png", 1)
		}
	}
	return url
}

// Cached returns a tile already held in memory without touching disk or network.
func (s *TileStore) Cached(t Tile) (image.Image, bool) {
	img, ok := s.mem.Load(s.path(t))
	if !ok {
		return nil, false
	}
	return img.(image.Image), true
}

// --- Tile Downloading & Caching ---

func (s *TileStore) Get(ctx context.Context, t Tile) (image.Image, error) {
	tilePath := s.path(t)
	if img, ok := s.mem.Load(tilePath); ok {
		metrics.TileFetches.WithLabelValues("memory").Inc()
		return img.(image.Image), nil
	}

	if data, err := os.ReadFile(tilePath); err == nil {
		img, err := s.decode(data)
		if err != nil {
			metrics.TileFetches.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("failed to decode cached tile %s: %w", tilePath, err)
		}
		metrics.TileFetches.WithLabelValues("disk").Inc()
		s.mem.Store(tilePath, img)
		return img, nil
	}

	img, err := s.download(ctx, t, tilePath)
	if err != nil {
		metrics.TileFetches.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.TileFetches.WithLabelValues("download").Inc()
	s.mem.Store(tilePath, img)
	return img, nil
}

func (s *TileStore) download(ctx context.Context, t Tile, tilePath string) (image.Image, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := s.url(t)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "GpsFlyoverVideoGo/0.1")
	for k, v := range s.style.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download tile %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && s.opts.Retina {
		return nil, fmt.Errorf("%w: %s (got 404 for %s)", ErrRetinaUnsupported, s.style.Name, url)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download tile %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tile %s: %w", url, err)
	}
	img, err := s.decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tile %s: %w", url, err)
	}

	if err := os.MkdirAll(filepath.Dir(tilePath), 0755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(tilePath, data, 0644); err != nil {
		return nil, err
	}
	return img, nil
}

// decode checks the tile size and applies the brightness and contrast
// adjustment.
func (s *TileStore) decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if s.opts.Retina && (img.Bounds().Dx() != 512 || img.Bounds().Dy() != 512) {
		return nil, fmt.Errorf("%w: %s tile is %dx%d", ErrRetinaUnsupported, s.style.Name, img.Bounds().Dx(), img.Bounds().Dy())
	}
	if s.opts.Brightness != 0 || s.opts.Contrast != 1 {
		img = adjustBrightnessContrast(img, s.opts.Brightness, s.opts.Contrast)
	}
	return img, nil
}

func adjustBrightnessContrast(img image.Image, brightness, contrast float64) image.Image {
	bounds := img.Bounds()
	newImg := image.NewRGBA(bounds)

	adjust := func(v uint32) uint8 {
		c := float64(v>>8) + brightness*255
		c = (c-128)*contrast + 128
		return uint8(geo.Clamp(c, 0, 255))
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, a := img.At(x, y).RGBA()
			newImg.Set(x, y, color.RGBA{R: adjust(r), G: adjust(g), B: adjust(b), A: uint8(a >> 8)})
		}
	}
	return newImg
}

// --- Tile Coverage ---

// tilesForView lists the tiles a camera at center/zoom/pitch can see in a
// width x height viewport, at any bearing.
func tilesForView(center orb.Point, zoom, pitch float64, width, height, tileSize int) []Tile {
	z, residual := geo.SplitZoom(zoom)
	ts := float64(tileSize)
	wx, wy := geo.Deg2Num(center.Lat(), center.Lon(), z)
	wx *= ts
	wy *= ts

	// Pitch stretches the visible ground towards the horizon.
	cosPitch := math.Max(math.Cos(pitch*math.Pi/180), minPitchCos)
	rx := float64(width) / 2 * residual
	ry := float64(height) / 2 * residual / cosPitch
	r := math.Hypot(rx, ry)

	txMin := int(math.Floor((wx - r) / ts))
	tyMin := int(math.Floor((wy - r) / ts))
	txMax := int(math.Floor((wx + r) / ts))
	tyMax := int(math.Floor((wy + r) / ts))

	n := 1 << z
	var tiles []Tile
	for x := txMin; x <= txMax; x++ {
		for y := tyMin; y <= tyMax; y++ {
			if y < 0 || y >= n {
				continue
			}
			tiles = append(tiles, Tile{X: x, Y: y, Z: z})
		}
	}
	return tiles
}

func prefetchTiles(ctx context.Context, store *TileStore, allTiles map[Tile]struct{}, concurrency int, log logrus.FieldLogger) error {
	if concurrency <= 0 {
		concurrency = 1
	}
	log.WithField("tiles", len(allTiles)).Info("Prefetching map tiles")
	bar := progressbar.Default(int64(len(allTiles)), "Downloading Tiles")

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	limit := make(chan struct{}, concurrency)

	for tile := range allTiles {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		limit <- struct{}{}
		go func(t Tile) {
			defer wg.Done()
			defer func() { <-limit }()
			if _, err := store.Get(ctx, t); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				log.WithError(err).Debug("Tile prefetch failed")
			}
			bar.Add(1)
		}(tile)
	}
	wg.Wait()
	bar.Finish()

	if err := ctx.Err(); err != nil {
		return err
	}
	if failed > 0 {
		log.WithField("failed", failed).Warn("Some tiles could not be fetched, they will render blank")
	}
	return nil
}

// --- Look-ahead Prefetch ---

type prefetchRequest struct {
	center orb.Point
	zoom   float64
}

// tilePrefetcher is the surface.Prefetcher handed to the player. Requests
// are deduplicated by geohash cell and tile zoom, and dropped when the
// queue is full so the caller never blocks.
type tilePrefetcher struct {
	ctx    context.Context
	store  *TileStore
	width  int
	height int
	pitch  float64
	log    logrus.FieldLogger

	queue chan prefetchRequest
	wg    sync.WaitGroup

	mu     sync.Mutex
	seen   map[string]struct{}
	closed bool
}

var _ surface.Prefetcher = (*tilePrefetcher)(nil)

const (
	prefetchQueueSize   = 256
	prefetchGeohashSize = 7
)

func newTilePrefetcher(ctx context.Context, store *TileStore, width, height int, pitch float64, workers int, log logrus.FieldLogger) *tilePrefetcher {
	if workers <= 0 {
		workers = 1
	}
	p := &tilePrefetcher{
		ctx:    ctx,
		store:  store,
		width:  width,
		height: height,
		pitch:  pitch,
		log:    log.WithField("component", "prefetch"),
		queue:  make(chan prefetchRequest, prefetchQueueSize),
		seen:   make(map[string]struct{}),
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func prefetchKey(center orb.Point, zoom float64) string {
	z, _ := geo.SplitZoom(zoom)
	return geohash.EncodeWithPrecision(center.Lat(), center.Lon(), prefetchGeohashSize) + "/" + strconv.Itoa(z)
}

func (p *tilePrefetcher) Prefetch(center orb.Point, zoom float64) {
	key := prefetchKey(center, zoom)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	if _, ok := p.seen[key]; ok {
		metrics.PrefetchRequests.WithLabelValues("duplicate").Inc()
		return
	}
	select {
	case p.queue <- prefetchRequest{center: center, zoom: zoom}:
		p.seen[key] = struct{}{}
		metrics.PrefetchRequests.WithLabelValues("queued").Inc()
	default:
		metrics.PrefetchRequests.WithLabelValues("dropped").Inc()
	}
}

func (p *tilePrefetcher) worker() {
	defer p.wg.Done()
	for req := range p.queue {
		for _, t := range tilesForView(req.center, req.zoom, p.pitch, p.width, p.height, p.store.TileSize()) {
			if p.ctx.Err() != nil {
				break
			}
			if _, err := p.store.Get(p.ctx, t); err != nil {
				p.log.WithError(err).Debug("Look-ahead tile fetch failed")
			}
		}
	}
}

// Close stops accepting requests and waits for queued ones to finish.
func (p *tilePrefetcher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
