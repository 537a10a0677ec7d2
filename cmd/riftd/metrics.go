package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/riftctl/rift/internal/actionstate"
	"github.com/rs/zerolog/log"
)

var metricsShutdownTimeout = 5 * time.Second

// runningActions exposes the count of in-flight actionstate.Registry
// guards (spec.md §4.3); set from a ticking observer in startMetricsServer
// rather than threaded through every Dispatcher call site.
var runningActions = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "rift",
	Name:      "running_actions",
	Help:      "Number of resources currently holding an action-state guard.",
})

func init() {
	prometheus.MustRegister(runningActions)
}

// startMetricsServer exposes a standalone Prometheus /metrics endpoint,
// grounded on cmd/pulse/metrics_server.go's dedicated-listener idiom
// (kept off the authenticated HTTP surface so it needs no bearer token).
func startMetricsServer(ctx context.Context, addr string, actions *actionstate.Registry) {
	go observeRunningActions(ctx, actions)

	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Str("addr", addr).Msg("metrics server shutdown failed")
		}
	}()

	go func() {
		log.Info().Str("addr", addr).Msg("metrics endpoint listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn().Err(err).Str("addr", addr).Msg("metrics server stopped unexpectedly")
		}
	}()
}

func observeRunningActions(ctx context.Context, actions *actionstate.Registry) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runningActions.Set(float64(actions.Len()))
		}
	}
}
