package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordRequest("/rpc/:method", "POST", 200, 10*time.Millisecond)
	m.RecordRequest("/rpc/:method", "POST", 200, 20*time.Millisecond)
	m.RecordRPC("Approve", "success")
	m.RecordOnboardingTransition("queue-step")
	m.RecordJobRun("auto_unclaim", 3, nil)
	m.RecordJobRun("auto_unclaim", 0, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("POST", "/rpc/:method", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rpcCalls.WithLabelValues("Approve", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.onboarding.WithLabelValues("queue-step")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("auto_unclaim", "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.jobItems.WithLabelValues("auto_unclaim")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.RecordRequest("/", "GET", 200, time.Millisecond)
	m.RecordError("/", "GET", "NOT_FOUND")
	m.RecordRPC("Deny", "error")
	m.RecordOnboardingTransition("pending")
	m.RecordJobRun("team_cleanup", 1, nil)
}
