// Package metrics exposes sentinel operational metrics.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	CheckRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_check_runs_total",
			Help: "Tier 0 check executions by outcome",
		},
		[]string{"check", "status"}, // status: ok | alerting | error
	)

	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_alerts_total",
			Help: "Alerts raised by Tier 0 checks",
		},
		[]string{"check", "severity"},
	)

	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_llm_requests_total",
			Help: "Completion requests by provider and status",
		},
		[]string{"provider", "status"}, // status: ok | error
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sentinel_llm_request_duration_seconds",
			Help:    "Completion request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"provider"},
	)

	InvestigationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_investigations_total",
			Help: "Tier 2 investigations by terminal outcome",
		},
		[]string{"outcome"},
	)

	InvestigationRounds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentinel_investigation_rounds",
			Help:    "Completion rounds used per investigation",
			Buckets: prometheus.LinearBuckets(1, 1, 5),
		},
	)

	DigestAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_digest_attempts_total",
			Help: "Daily digest attempts by status",
		},
		[]string{"status"}, // status: ok | error
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentinel_notifications_total",
			Help: "Notification deliveries by severity and status",
		},
		[]string{"severity", "status"}, // status: sent | dropped
	)
)

// Serve runs the /metrics and /healthz listener until ctx is cancelled.
// Intended to run in its own goroutine; errors are logged, never fatal.
func Serve(ctx context.Context, addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listener starting", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn("metrics listener failed", zap.Error(err))
	}
}
