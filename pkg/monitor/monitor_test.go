package monitor

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowPrunes(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	w := NewSlidingWindowWithClock(time.Minute, clock)

	w.Append(Sample{Kind: SampleAttestation, Success: true, At: now.Add(-2 * time.Minute)})
	w.Append(Sample{Kind: SampleAttestation, Success: true, At: now.Add(-30 * time.Second)})
	w.Append(Sample{Kind: SampleRevocation, Success: true})

	assert.Equal(t, 2, w.Count(""), "expired samples are pruned on read")
	assert.Equal(t, 1, w.Count(SampleAttestation))
	assert.Equal(t, 1, w.Count(SampleRevocation))

	now = now.Add(2 * time.Minute)
	assert.Zero(t, w.Count(""))
}

func TestFailureRate(t *testing.T) {
	w := NewSlidingWindow(time.Minute)
	assert.Zero(t, w.FailureRate())

	w.Append(Sample{Kind: SampleScan, Success: true})
	w.Append(Sample{Kind: SampleScan, Success: false})
	assert.InDelta(t, 0.5, w.FailureRate(), 1e-9)
}

func detector() *AnomalyDetector { return NewAnomalyDetector(DefaultDetectorConfig()) }

func hasRule(alerts []Alert, rule string) bool {
	for _, a := range alerts {
		if a.Rule == rule {
			return true
		}
	}
	return false
}

func TestRevocationRateAlert(t *testing.T) {
	w := NewSlidingWindow(time.Minute)
	w.Append(Sample{Kind: SampleAttestation, Score: 0.5, Success: true})
	w.Append(Sample{Kind: SampleRevocation, Agent: "agent:a", Success: true})
	w.Append(Sample{Kind: SampleRevocation, Agent: "agent:b", Success: true})

	assert.True(t, hasRule(detector().Analyze(w), "revocation_rate"))
}

func TestLowAverageScoreAlert(t *testing.T) {
	w := NewSlidingWindow(time.Minute)
	for i := 0; i < 5; i++ {
		w.Append(Sample{Kind: SampleAttestation, Score: 0.1, Success: true})
	}
	alerts := detector().Analyze(w)
	assert.True(t, hasRule(alerts, "low_average_score"))

	// Too few samples never alerts.
	w2 := NewSlidingWindow(time.Minute)
	w2.Append(Sample{Kind: SampleAttestation, Score: 0.1, Success: true})
	assert.False(t, hasRule(detector().Analyze(w2), "low_average_score"))
}

func TestFailureRateAlertNeedsTenSamples(t *testing.T) {
	w := NewSlidingWindow(time.Minute)
	for i := 0; i < 9; i++ {
		w.Append(Sample{Kind: SampleScan, Success: false})
	}
	assert.False(t, hasRule(detector().Analyze(w), "failure_rate"))

	w.Append(Sample{Kind: SampleScan, Success: false})
	assert.True(t, hasRule(detector().Analyze(w), "failure_rate"))
}

func TestLatencyRegressionAlert(t *testing.T) {
	w := NewSlidingWindow(time.Minute)
	for i := 0; i < 4; i++ {
		w.Append(Sample{Kind: SampleRequest, Latency: 100 * time.Millisecond, Success: true})
	}
	for i := 0; i < 4; i++ {
		w.Append(Sample{Kind: SampleRequest, Latency: 400 * time.Millisecond, Success: true})
	}
	assert.True(t, hasRule(detector().Analyze(w), "latency_regression"))
}

func TestRevocationBurstAlert(t *testing.T) {
	w := NewSlidingWindow(time.Minute)
	for i := 0; i < 5; i++ {
		w.Append(Sample{Kind: SampleRevocation, Agent: "agent:spammer", Success: true})
	}
	alerts := detector().Analyze(w)
	require.True(t, hasRule(alerts, "revocation_burst"))
	for _, a := range alerts {
		if a.Rule == "revocation_burst" {
			assert.Contains(t, a.Message, "agent:spammer")
		}
	}
}

func TestQuietWindowRaisesNothing(t *testing.T) {
	w := NewSlidingWindow(time.Minute)
	for i := 0; i < 20; i++ {
		w.Append(Sample{Kind: SampleAttestation, Score: 0.8, Success: true})
	}
	assert.Empty(t, detector().Analyze(w))
}

type fakeStats struct{ atts, revs int }

func (f fakeStats) AttestationCount() int { return f.atts }
func (f fakeStats) RevocationCount() int  { return f.revs }

func TestHealthScore(t *testing.T) {
	w := NewSlidingWindow(time.Minute)
	e := NewExporter(w, detector(), fakeStats{})
	assert.Equal(t, 1.0, e.HealthScore(), "an idle service is healthy")

	for i := 0; i < 10; i++ {
		w.Append(Sample{Kind: SampleScan, Success: false})
	}
	score := e.HealthScore()
	assert.Less(t, score, 1.0)
	assert.GreaterOrEqual(t, score, 0.0)
}

func TestPrometheusRender(t *testing.T) {
	w := NewSlidingWindow(time.Minute)
	w.Append(Sample{Kind: SampleAttestation, Score: 0.8, Success: true})
	e := NewExporter(w, detector(), fakeStats{atts: 42, revs: 3})

	out := e.Render()
	assert.Contains(t, out, "isnad_attestations_total 42")
	assert.Contains(t, out, "isnad_revocations_total 3")
	assert.Contains(t, out, "isnad_health_score")
	assert.Contains(t, out, `isnad_anomalies{severity="critical"} 0`)
	assert.True(t, strings.Contains(out, "# TYPE isnad_health_score gauge"))

	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}
