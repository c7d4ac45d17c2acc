// Package monitor tracks operational health: sliding-window samples,
// anomaly detection over the window, and Prometheus-text export.
package monitor

import (
	"sort"
	"sync"
	"time"
)

// Sample kinds recorded into a window.
const (
	SampleAttestation = "attestation"
	SampleRevocation  = "revocation"
	SampleScan        = "scan"
	SampleRequest     = "request"
)

// Sample is one timestamped observation.
type Sample struct {
	Kind    string
	Agent   string
	Score   float64
	Latency time.Duration
	Success bool
	At      time.Time
}

// SlidingWindow retains samples no older than the window span. Pruning
// happens on read, so appends stay O(1).
type SlidingWindow struct {
	mu      sync.Mutex
	span    time.Duration
	samples []Sample
	clock   func() time.Time
}

// NewSlidingWindow returns a window spanning the given duration.
func NewSlidingWindow(span time.Duration) *SlidingWindow {
	return &SlidingWindow{span: span, clock: time.Now}
}

// NewSlidingWindowWithClock injects a clock for tests.
func NewSlidingWindowWithClock(span time.Duration, clock func() time.Time) *SlidingWindow {
	return &SlidingWindow{span: span, clock: clock}
}

// Append records a sample, stamping it with the current time if unset.
func (w *SlidingWindow) Append(s Sample) {
	if s.At.IsZero() {
		s.At = w.clock()
	}
	w.mu.Lock()
	w.samples = append(w.samples, s)
	w.mu.Unlock()
}

// Samples returns the live samples, oldest first.
func (w *SlidingWindow) Samples() []Sample {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.clock().Add(-w.span)
	keep := 0
	for keep < len(w.samples) && w.samples[keep].At.Before(cutoff) {
		keep++
	}
	w.samples = w.samples[keep:]

	out := make([]Sample, len(w.samples))
	copy(out, w.samples)
	return out
}

// Count returns the number of live samples of the given kind ("" counts
// everything).
func (w *SlidingWindow) Count(kind string) int {
	n := 0
	for _, s := range w.Samples() {
		if kind == "" || s.Kind == kind {
			n++
		}
	}
	return n
}

// FailureRate returns the fraction of live samples with Success=false,
// or 0 for an empty window.
func (w *SlidingWindow) FailureRate() float64 {
	samples := w.Samples()
	if len(samples) == 0 {
		return 0
	}
	failures := 0
	for _, s := range samples {
		if !s.Success {
			failures++
		}
	}
	return float64(failures) / float64(len(samples))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
