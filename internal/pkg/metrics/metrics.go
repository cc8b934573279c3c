// Package metrics exposes Prometheus instrumentation for the chat engine
// and the HTTP endpoint that serves it alongside a liveness probe.
//
// A nil *Collector is a valid no-op receiver, so callers never need to
// nil-check.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// Collector tracks engine counters. Construct with New.
type Collector struct {
	registry *prometheus.Registry

	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	framesReceived    prometheus.Counter
	framesDropped     prometheus.Counter
	messagesBroadcast prometheus.Counter
}

// New creates a Collector backed by its own registry.
func New() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Collector{
		registry: registry,
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "minirc",
			Name:      "connections_active",
			Help:      "Currently open client connections.",
		}),
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "minirc",
			Name:      "connections_total",
			Help:      "Client connections accepted since start.",
		}),
		framesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "minirc",
			Name:      "frames_received_total",
			Help:      "Inbound frames read from clients.",
		}),
		framesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "minirc",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames dropped as malformed.",
		}),
		messagesBroadcast: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "minirc",
			Name:      "messages_broadcast_total",
			Help:      "Per-recipient broadcast deliveries attempted.",
		}),
	}
}

// ConnectionOpened bumps the active and total connection counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Inc()
	c.connectionsTotal.Inc()
}

// ConnectionClosed decrements the active connection gauge.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Dec()
}

// FrameReceived counts one inbound frame.
func (c *Collector) FrameReceived() {
	if c == nil {
		return
	}
	c.framesReceived.Inc()
}

// FrameDropped counts one malformed inbound frame.
func (c *Collector) FrameDropped() {
	if c == nil {
		return
	}
	c.framesDropped.Inc()
}

// BroadcastAttempted counts n per-recipient deliveries.
func (c *Collector) BroadcastAttempted(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.messagesBroadcast.Add(float64(n))
}

// Handler returns the Prometheus scrape handler for this collector.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve runs the health and metrics endpoint on the given port until ctx
// is cancelled. Paths: /healthz, /metrics.
func (c *Collector) Serve(ctx context.Context, port uint16) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("health server shutdown failed")
		}
	}()
	logger.WithField("port", port).Info("health and metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
