// Package httpapi exposes the engine's operational surface over HTTP:
// Prometheus scraping and a JSON bucket-state debug dump. Routing
// follows the teacher pack's go-chi/chi/v5 convention rather than the
// bare net/http mux the original telegraf plugin uses internally.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BucketSummary is the JSON shape of one row in the /debug/buckets dump.
type BucketSummary struct {
	Key             string  `json:"key"`
	Type            string  `json:"type"`
	Sampling        bool    `json:"sampling"`
	LastWindowCount int64   `json:"last_window_count"`
	Count           float64 `json:"count"`
	Sum             float64 `json:"sum"`
}

// Snapshotter is satisfied by engine.Engine; kept as a narrow interface
// here so this package does not import internal/engine directly and
// the dependency only runs one way (cmd wires engine into httpapi).
type Snapshotter interface {
	Snapshot() []BucketSummary
}

// Router builds the chi router serving /metrics and /debug/buckets.
func Router(registry *prometheus.Registry, snap Snapshotter) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Get("/debug/buckets", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap.Snapshot()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
