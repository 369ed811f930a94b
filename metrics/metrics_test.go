package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCounterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	return testutil.ToFloat64(c)
}

func TestObserveLockWaitIncrementsCounterAndHistogram(t *testing.T) {
	r := New()
	r.ObserveLockWait(10*time.Millisecond, "ok")
	assert.Equal(t, float64(1), testCounterValue(t, r.LockAcquireTotal.WithLabelValues("ok")))
}

func TestObserveTransactionLabelsKindAndOutcome(t *testing.T) {
	r := New()
	r.ObserveTransaction("update", "ok", 5*time.Millisecond)
	assert.Equal(t, float64(1), testCounterValue(t, r.TransactionTotal.WithLabelValues("update", "ok")))
}

func TestObservePulseLabelsExitCode(t *testing.T) {
	r := New()
	r.ObservePulse("architect", 0, time.Second)
	r.ObservePulse("architect", 7, time.Second)
	assert.Equal(t, float64(1), testCounterValue(t, r.PulseTotal.WithLabelValues("architect", "0")))
	assert.Equal(t, float64(1), testCounterValue(t, r.PulseTotal.WithLabelValues("architect", "other")))
}

func TestServeExposesMetricsEndpoint(t *testing.T) {
	r := New()
	r.OrphanExchangesRemoved.Inc()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Serve(ctx, "127.0.0.1:19091", r) }()

	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:19091/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ = io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	assert.Contains(t, string(body), "relay_store_orphan_exchanges_removed_total")

	cancel()
	require.NoError(t, <-errCh)
}
