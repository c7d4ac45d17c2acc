package monitor

import "fmt"

// Alert severities.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert names a detected anomaly.
type Alert struct {
	Rule     string  `json:"rule"`
	Severity string  `json:"severity"`
	Message  string  `json:"message"`
	Value    float64 `json:"value"`
}

// DetectorConfig tunes the anomaly rules.
type DetectorConfig struct {
	// RevocationRateMultiple: alert when revocations exceed this multiple
	// of attestations in the window.
	RevocationRateMultiple float64
	// MinScore and MinScoreSamples: alert when the average attestation
	// score drops below MinScore with at least MinScoreSamples samples.
	MinScore        float64
	MinScoreSamples int
	// MaxFailureRate: alert when the failure rate exceeds this over at
	// least 10 samples.
	MaxFailureRate float64
	// LatencyFactor: alert when recent median latency exceeds the
	// baseline median by this factor (at least 5 latency samples).
	LatencyFactor float64
	// RevocationBurst: alert when one agent issues at least this many
	// revocations in the window.
	RevocationBurst int
}

// DefaultDetectorConfig returns the stock thresholds.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		RevocationRateMultiple: 0.5,
		MinScore:               0.3,
		MinScoreSamples:        5,
		MaxFailureRate:         0.25,
		LatencyFactor:          2.0,
		RevocationBurst:        5,
	}
}

// AnomalyDetector evaluates a window against fixed heuristics. Analyze is
// pure: it never mutates the window beyond the usual read-side pruning.
type AnomalyDetector struct {
	cfg DetectorConfig
}

// NewAnomalyDetector returns a detector with the given thresholds.
func NewAnomalyDetector(cfg DetectorConfig) *AnomalyDetector {
	return &AnomalyDetector{cfg: cfg}
}

// Analyze inspects the window and returns every triggered alert.
func (d *AnomalyDetector) Analyze(w *SlidingWindow) []Alert {
	samples := w.Samples()
	var alerts []Alert

	attCount, revCount := 0, 0
	scoreSum := 0.0
	failures := 0
	revByAgent := make(map[string]int)
	var latencies []float64
	for _, s := range samples {
		switch s.Kind {
		case SampleAttestation:
			attCount++
			scoreSum += s.Score
		case SampleRevocation:
			revCount++
			revByAgent[s.Agent]++
		}
		if !s.Success {
			failures++
		}
		if s.Latency > 0 {
			latencies = append(latencies, float64(s.Latency.Milliseconds()))
		}
	}

	// (a) revocations outpacing attestations.
	if revCount > 0 && float64(revCount) > d.cfg.RevocationRateMultiple*float64(attCount) {
		ratio := float64(revCount)
		if attCount > 0 {
			ratio = float64(revCount) / float64(attCount)
		}
		alerts = append(alerts, Alert{
			Rule:     "revocation_rate",
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("%d revocations against %d attestations", revCount, attCount),
			Value:    ratio,
		})
	}

	// (b) average attestation score below threshold.
	if attCount >= d.cfg.MinScoreSamples {
		avg := scoreSum / float64(attCount)
		if avg < d.cfg.MinScore {
			alerts = append(alerts, Alert{
				Rule:     "low_average_score",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("average attestation score %.3f below %.3f", avg, d.cfg.MinScore),
				Value:    avg,
			})
		}
	}

	// (c) failure rate over a meaningful sample.
	if len(samples) >= 10 {
		rate := float64(failures) / float64(len(samples))
		if rate > d.cfg.MaxFailureRate {
			alerts = append(alerts, Alert{
				Rule:     "failure_rate",
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("failure rate %.2f over %d samples", rate, len(samples)),
				Value:    rate,
			})
		}
	}

	// (d) latency regression: recent half vs. the older baseline half.
	if len(latencies) >= 5 {
		mid := len(latencies) / 2
		baseline := median(latencies[:mid])
		recent := median(latencies[mid:])
		if baseline > 0 && recent > baseline*d.cfg.LatencyFactor {
			alerts = append(alerts, Alert{
				Rule:     "latency_regression",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("recent median %.0fms exceeds baseline %.0fms", recent, baseline),
				Value:    recent / baseline,
			})
		}
	}

	// (e) revocation burst from one agent.
	for agent, n := range revByAgent {
		if n >= d.cfg.RevocationBurst {
			alerts = append(alerts, Alert{
				Rule:     "revocation_burst",
				Severity: SeverityCritical,
				Message:  fmt.Sprintf("agent %s issued %d revocations in window", agent, n),
				Value:    float64(n),
			})
		}
	}

	return alerts
}
