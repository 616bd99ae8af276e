// Package stats aggregates smoke test and benchmark measurements for
// the exit summary.
package stats

import (
	"sync"

	"github.com/influxdata/tdigest"
)

// LatencyDigest is a concurrency-safe quantile sketch. It keeps
// memory bounded no matter how many samples are added.
type LatencyDigest struct {
	mu     sync.Mutex
	digest *tdigest.TDigest
	count  int64
	min    float64
	max    float64
	sum    float64
}

// NewLatencyDigest returns an empty digest.
func NewLatencyDigest() *LatencyDigest {
	return &LatencyDigest{digest: tdigest.New()}
}

// Add records one sample.
func (d *LatencyDigest) Add(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.digest.Add(v, 1)
	if d.count == 0 || v < d.min {
		d.min = v
	}
	if d.count == 0 || v > d.max {
		d.max = v
	}
	d.sum += v
	d.count++
}

// Quantile returns the value at quantile q in [0, 1]. Zero when no
// samples have been added.
func (d *LatencyDigest) Quantile(q float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.count == 0 {
		return 0
	}
	return d.digest.Quantile(q)
}

// Count returns the number of samples added.
func (d *LatencyDigest) Count() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// Min returns the smallest sample, zero when empty.
func (d *LatencyDigest) Min() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.min
}

// Max returns the largest sample, zero when empty.
func (d *LatencyDigest) Max() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.max
}

// Mean returns the arithmetic mean, zero when empty.
func (d *LatencyDigest) Mean() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.count == 0 {
		return 0
	}
	return d.sum / float64(d.count)
}
