package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Animation
	AnimationState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flyover_animation_state",
			Help: "Animation loop state (0 = idle, 1 = running, 2 = paused, 3 = finished)",
		},
	)

	AnimationProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flyover_animation_progress",
			Help: "Current global playback progress in [0,1]",
		},
	)

	AnimationFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flyover_animation_frames_total",
			Help: "Total number of animation frames computed by the player",
		},
	)

	// Video pipeline
	FramesRendered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flyover_frames_rendered_total",
			Help: "Total number of frames handed to a surface output",
		},
		[]string{"surface"},
	)

	FrameRenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flyover_frame_render_duration_seconds",
			Help:    "Time spent rasterising one video frame",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// Tiles
	TileFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flyover_tile_fetches_total",
			Help: "Tile lookups by result (memory, disk, download, error)",
		},
		[]string{"result"},
	)

	PrefetchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flyover_prefetch_requests_total",
			Help: "Look-ahead prefetch requests by outcome (queued, duplicate, dropped)",
		},
		[]string{"outcome"},
	)

	// Loading
	PointsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flyover_points_loaded_total",
			Help: "Track points read from activity files",
		},
		[]string{"format"},
	)

	// Live surface
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flyover_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	WebSocketMessagesOut = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flyover_websocket_messages_out_total",
			Help: "Total number of WebSocket messages sent",
		},
		[]string{"type"},
	)

	WebSocketErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flyover_websocket_errors_total",
			Help: "Total number of WebSocket errors",
		},
	)
)
