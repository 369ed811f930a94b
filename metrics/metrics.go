// Package metrics exposes the relay kernel's Prometheus counters and
// histograms: lock contention, transaction outcomes, and pulse
// durations.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric the kernel records, registered against
// its own prometheus.Registry so a library consumer can embed it
// without colliding with the default global registry.
type Registry struct {
	reg *prometheus.Registry

	LockAcquireTotal   *prometheus.CounterVec
	LockWaitSeconds     prometheus.Histogram
	LockStaleReclaimed  prometheus.Counter

	TransactionTotal    *prometheus.CounterVec
	TransactionSeconds  *prometheus.HistogramVec

	PulseTotal          *prometheus.CounterVec
	PulseSeconds        prometheus.Histogram

	OrphanExchangesRemoved prometheus.Counter
}

// New builds a Registry with every metric registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		LockAcquireTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "lock",
			Name:      "acquire_total",
			Help:      "Lock acquisition attempts by outcome (ok, busy, fatal).",
		}, []string{"outcome"}),
		LockWaitSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "lock",
			Name:      "wait_seconds",
			Help:      "Time spent waiting to acquire the advisory lock.",
			Buckets:   prometheus.DefBuckets,
		}),
		LockStaleReclaimed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "lock",
			Name:      "stale_reclaimed_total",
			Help:      "Times a stale lock was reclaimed from a dead holder.",
		}),
		TransactionTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "store",
			Name:      "transaction_total",
			Help:      "Store transactions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		TransactionSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "store",
			Name:      "transaction_seconds",
			Help:      "Store transaction duration by kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		PulseTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "pulse",
			Name:      "total",
			Help:      "Pulse invocations by role and exit code.",
		}, []string{"role", "exit_code"}),
		PulseSeconds: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "pulse",
			Name:      "seconds",
			Help:      "Wall-clock duration of one pulse invocation.",
			Buckets:   prometheus.DefBuckets,
		}),
		OrphanExchangesRemoved: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "store",
			Name:      "orphan_exchanges_removed_total",
			Help:      "Exchange artifacts deleted during orphan reconciliation.",
		}),
	}
	return r
}

// ObserveLockWait records how long an acquisition waited and its
// outcome.
func (r *Registry) ObserveLockWait(wait time.Duration, outcome string) {
	r.LockAcquireTotal.WithLabelValues(outcome).Inc()
	r.LockWaitSeconds.Observe(wait.Seconds())
}

// ObserveTransaction records a store transaction's kind, outcome, and
// duration.
func (r *Registry) ObserveTransaction(kind, outcome string, d time.Duration) {
	r.TransactionTotal.WithLabelValues(kind, outcome).Inc()
	r.TransactionSeconds.WithLabelValues(kind).Observe(d.Seconds())
}

// ObservePulse records one pulse invocation's role, exit code, and
// duration.
func (r *Registry) ObservePulse(role string, exitCode int, d time.Duration) {
	r.PulseTotal.WithLabelValues(role, exitCodeLabel(exitCode)).Inc()
	r.PulseSeconds.Observe(d.Seconds())
}

func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "0"
	case 1:
		return "1"
	case 2:
		return "2"
	default:
		return "other"
	}
}

// Serve starts an HTTP server exposing r on addr at /metrics, blocking
// until ctx is canceled.
func Serve(ctx context.Context, addr string, r *Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
