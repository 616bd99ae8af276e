package stats

import (
	"sync"
	"time"
)

// BenchAggregate collects measurements across repeated smoke requests.
type BenchAggregate struct {
	mu sync.Mutex

	runs     int
	failures int

	totalAudio time.Duration
	totalWall  time.Duration

	ConnectMs *LatencyDigest
	TTFBMs    *LatencyDigest
	RTF       *LatencyDigest
}

// NewBenchAggregate returns an empty aggregate.
func NewBenchAggregate() *BenchAggregate {
	return &BenchAggregate{
		ConnectMs: NewLatencyDigest(),
		TTFBMs:    NewLatencyDigest(),
		RTF:       NewLatencyDigest(),
	}
}

// Record adds one successful request's measurements.
func (a *BenchAggregate) Record(connect, ttfb, wall time.Duration, audioSeconds, rtf float64) {
	a.mu.Lock()
	a.runs++
	a.totalAudio += time.Duration(audioSeconds * float64(time.Second))
	a.totalWall += wall
	a.mu.Unlock()

	a.ConnectMs.Add(float64(connect.Milliseconds()))
	a.TTFBMs.Add(float64(ttfb.Milliseconds()))
	a.RTF.Add(rtf)
}

// RecordFailure counts a failed request.
func (a *BenchAggregate) RecordFailure() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runs++
	a.failures++
}

// Runs returns the number of requests attempted.
func (a *BenchAggregate) Runs() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.runs
}

// Failures returns the number of failed requests.
func (a *BenchAggregate) Failures() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failures
}

// TotalAudio returns the synthesized audio duration across all runs.
func (a *BenchAggregate) TotalAudio() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalAudio
}

// TotalWall returns the wall time spent across all runs.
func (a *BenchAggregate) TotalWall() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalWall
}
