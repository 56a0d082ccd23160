// Package telemetry exposes Prometheus metrics for the playback arbiter.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tejashwikalptaru/adzantune/internal/domain"
)

const namespace = "adzantune"

// Metrics holds the arbiter's collectors. A nil *Metrics is valid and
// records nothing, so services can be built without a registry.
type Metrics struct {
	transitions   *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	announcements *prometheus.CounterVec
	remoteErrors  *prometheus.CounterVec
	status        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_transitions_total",
				Help:      "Playback status transitions",
			},
			[]string{"from", "to"},
		),
		rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_rejected_total",
				Help:      "Normal playback commands rejected during an interruption",
			},
			[]string{"reason"},
		),
		announcements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "announcements_fired_total",
				Help:      "Prayer announcements fired by the scheduler",
			},
			[]string{"prayer"},
		),
		remoteErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_errors_total",
				Help:      "Failed remote session calls",
			},
			[]string{"op", "kind"},
		),
		status: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "status",
				Help:      "Current playback status ordinal (0 idle, 1 waiting, 2 announcement, 3 iqomah, 4 advertisement)",
			},
		),
	}

	reg.MustRegister(m.transitions, m.rejected, m.announcements, m.remoteErrors, m.status)
	return m
}

// StatusTransition records a status change and updates the gauge.
func (m *Metrics) StatusTransition(from, to domain.PlaybackStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from.String(), to.String()).Inc()
	m.status.Set(float64(to))
}

// CommandRejected records a rejected normal command.
func (m *Metrics) CommandRejected(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

// AnnouncementFired records a scheduler firing.
func (m *Metrics) AnnouncementFired(prayer string) {
	if m == nil {
		return
	}
	m.announcements.WithLabelValues(prayer).Inc()
}

// RemoteError records a failed remote call, classified by ErrorKind.
func (m *Metrics) RemoteError(op string, err error) {
	if m == nil || err == nil {
		return
	}
	m.remoteErrors.WithLabelValues(op, ErrorKind(err)).Inc()
}

// ErrorKind classifies an error into a low-cardinality label.
func ErrorKind(err error) string {
	var remoteErr *domain.RemoteError
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, domain.ErrUpgradeRequired):
		return "upgrade_required"
	case errors.Is(err, domain.ErrRemoteNotReady):
		return "not_ready"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &remoteErr) && remoteErr.Status >= 500:
		return "server"
	case errors.As(err, &remoteErr) && remoteErr.Status >= 400:
		return "client"
	default:
		return "transport"
	}
}

// Serve exposes gatherer on addr at /metrics until ctx is cancelled.
func Serve(ctx context.Context, logger *slog.Logger, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listener started", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
