package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestBridgeMetricsCounters(t *testing.T) {
	m := Bridge()
	require.Same(t, m, Bridge())

	before := testutil.ToFloat64(m.polls.WithLabelValues("exchange_spot", "error"))
	m.ObservePoll("exchange_spot", true)
	require.Equal(t, before+1, testutil.ToFloat64(m.polls.WithLabelValues("exchange_spot", "error")))

	beforeOutcome := testutil.ToFloat64(m.outcomes.WithLabelValues("credited"))
	m.ObserveOutcome("Credited", 12*time.Second)
	require.Equal(t, beforeOutcome+1, testutil.ToFloat64(m.outcomes.WithLabelValues("credited")))

	beforeErr := testutil.ToFloat64(m.errors.WithLabelValues("withdraw", "unknown"))
	m.RecordError("withdraw", "  ")
	require.Equal(t, beforeErr+1, testutil.ToFloat64(m.errors.WithLabelValues("withdraw", "unknown")))
}

func TestNilBridgeMetricsIsSafe(t *testing.T) {
	var m *BridgeMetrics
	m.ObservePoll("onchain", false)
	m.ObserveOutcome("timed_out", time.Second)
	m.ObserveGateway("/info", "ok", time.Millisecond)
	m.RecordTransfer("deposit", "credited")
	m.RecordError("deposit", "gateway")
}

func TestPushSendsToGateway(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	Bridge().RecordTransfer("deposit", "credited")
	require.NoError(t, Push(context.Background(), server.URL, "hlbridge", map[string]string{"command": "deposit"}))
	require.True(t, strings.HasPrefix(path, "/metrics/job/hlbridge"), path)
	require.Contains(t, path, "command/deposit")

	require.NoError(t, Push(context.Background(), "", "hlbridge", nil))
}
