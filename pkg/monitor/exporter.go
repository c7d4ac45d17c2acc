package monitor

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Health score penalty weights.
const (
	penaltyFailureRate     = 0.4
	penaltyRevocationRatio = 0.3
	penaltyCritical        = 0.15
	penaltyWarning         = 0.05
)

// StatsSource supplies ledger totals for the exporter. *ledger.Ledger
// wrapped by the server satisfies it.
type StatsSource interface {
	AttestationCount() int
	RevocationCount() int
}

// Exporter renders Prometheus text-format metrics from the window, the
// detector, and ledger totals.
type Exporter struct {
	window   *SlidingWindow
	detector *AnomalyDetector
	stats    StatsSource
}

// NewExporter wires an exporter. stats may be nil when no ledger totals
// are available.
func NewExporter(window *SlidingWindow, detector *AnomalyDetector, stats StatsSource) *Exporter {
	return &Exporter{window: window, detector: detector, stats: stats}
}

// HealthScore folds failure rate, revocation pressure, and anomaly count
// into a single [0,1] figure. 1.0 is healthy.
func (e *Exporter) HealthScore() float64 {
	score := 1.0
	score -= penaltyFailureRate * e.window.FailureRate()

	att := e.window.Count(SampleAttestation)
	rev := e.window.Count(SampleRevocation)
	if att+rev > 0 {
		score -= penaltyRevocationRatio * float64(rev) / float64(att+rev)
	}

	for _, a := range e.detector.Analyze(e.window) {
		switch a.Severity {
		case SeverityCritical:
			score -= penaltyCritical
		default:
			score -= penaltyWarning
		}
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Render produces the metrics page in Prometheus text format.
func (e *Exporter) Render() string {
	var b strings.Builder

	writeGauge := func(name, help string, value float64) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n", name, help, name, name, value)
	}
	writeCounter := func(name, help string, value int) {
		fmt.Fprintf(&b, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", name, help, name, name, value)
	}

	if e.stats != nil {
		writeCounter("isnad_attestations_total", "Attestations admitted to the ledger.", e.stats.AttestationCount())
		writeCounter("isnad_revocations_total", "Revocations recorded.", e.stats.RevocationCount())
	}
	writeGauge("isnad_window_samples", "Samples in the sliding window.", float64(e.window.Count("")))
	writeGauge("isnad_window_failure_rate", "Failure rate over the sliding window.", e.window.FailureRate())

	alerts := e.detector.Analyze(e.window)
	bySeverity := map[string]int{SeverityWarning: 0, SeverityCritical: 0}
	for _, a := range alerts {
		bySeverity[a.Severity]++
	}
	fmt.Fprintf(&b, "# HELP isnad_anomalies Active anomaly alerts by severity.\n# TYPE isnad_anomalies gauge\n")
	severities := make([]string, 0, len(bySeverity))
	for s := range bySeverity {
		severities = append(severities, s)
	}
	sort.Strings(severities)
	for _, s := range severities {
		fmt.Fprintf(&b, "isnad_anomalies{severity=%q} %d\n", s, bySeverity[s])
	}

	writeGauge("isnad_health_score", "Overall health in [0,1]; 1 is healthy.", e.HealthScore())
	return b.String()
}

// Handler serves Render over HTTP for the /metrics endpoint.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(e.Render()))
	})
}
