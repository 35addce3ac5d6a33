// Package metrics exposes batch generation activity as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/datafarmer/datafarmer/internal/generation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "datafarmer"

// Recorder implements generation.Recorder with Prometheus collectors.
type Recorder struct {
	attempts *prometheus.CounterVec
	outcomes *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ generation.Recorder = (*Recorder)(nil)

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_attempts_total",
				Help:      "Total number of remote generation calls, labeled by result.",
			},
			[]string{"model", "result"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_outcomes_total",
				Help:      "Total number of requests that reached a terminal state, labeled by status.",
			},
			[]string{"model", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "generation_duration_seconds",
				Help:      "Time from dispatch to terminal state per request, retries included (seconds).",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"model"},
		),
	}

	for _, c := range []prometheus.Collector{r.attempts, r.outcomes, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ObserveAttempt counts one remote call.
func (r *Recorder) ObserveAttempt(model string, err error) {
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, generation.ErrContentBlocked):
		result = "blocked"
	default:
		result = "error"
	}
	r.attempts.WithLabelValues(model, result).Inc()
}

// ObserveOutcome counts one terminal request and records its duration.
func (r *Recorder) ObserveOutcome(model string, status generation.Status, elapsed time.Duration) {
	r.outcomes.WithLabelValues(model, status.String()).Inc()
	r.duration.WithLabelValues(model).Observe(elapsed.Seconds())
}

// Serve exposes g on addr at /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.InfoContext(ctx, "Serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
