package live

import (
	"net/http"
	"time"

	"gps_flyover_video/internal/metrics"
)

// NewMux routes /ws to the hub next to /metrics and /healthz.
func NewMux(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

func NewServer(addr string, hub *Hub) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewMux(hub),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
