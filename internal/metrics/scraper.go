package metrics

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// WorkerMetrics contains metrics scraped from the worker's own
// metrics endpoint.
type WorkerMetrics struct {
	// Process metrics
	CPUPercent  float64
	ResidentMem int64
	OpenFDs     int64

	// Serving metrics, zero when the worker does not export them
	ActiveSessions int64
	RequestsTotal  int64

	// Metadata
	LastUpdate time.Time
	Healthy    bool
	Error      string
}

// WorkerScraper polls the worker's Prometheus endpoint.
// Uses atomic.Value for lock-free metric reads.
type WorkerScraper struct {
	url        string
	interval   time.Duration
	logger     *slog.Logger
	httpClient *http.Client

	// Atomic storage (lock-free reads)
	metrics atomic.Value // *WorkerMetrics

	// CPU rate state (float64 as bits)
	lastCPUSeconds atomic.Uint64
	lastCPUTime    atomic.Value // time.Time
}

// NewWorkerScraper creates a worker metrics scraper.
// Returns nil if the URL is empty (feature disabled).
func NewWorkerScraper(url string, interval time.Duration, logger *slog.Logger) *WorkerScraper {
	if url == "" {
		return nil
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	scraper := &WorkerScraper{
		url:      url,
		interval: interval,
		logger:   logger,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
	scraper.metrics.Store(&WorkerMetrics{
		Healthy: false,
		Error:   "Not yet scraped",
	})
	return scraper
}

// Run starts the scrape loop. Blocks until ctx is cancelled.
func (s *WorkerScraper) Run(ctx context.Context) {
	if s == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.scrape()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scrape()
		}
	}
}

// GetMetrics returns the latest scrape (thread-safe, lock-free).
func (s *WorkerScraper) GetMetrics() *WorkerMetrics {
	if s == nil {
		return nil
	}
	ptr := s.metrics.Load()
	if ptr == nil {
		return nil
	}
	return ptr.(*WorkerMetrics)
}

// scrape fetches and parses the worker endpoint once.
func (s *WorkerScraper) scrape() {
	now := time.Now()

	families, err := s.fetch()
	if err != nil {
		// Keep the last values but mark unhealthy
		last := s.metrics.Load().(*WorkerMetrics)
		next := *last
		next.Healthy = false
		next.Error = err.Error()
		next.LastUpdate = now
		s.metrics.Store(&next)

		s.logger.Debug("worker_scrape_error", "url", s.url, "error", err)
		return
	}

	m := &WorkerMetrics{
		LastUpdate: now,
		Healthy:    true,
	}

	m.CPUPercent = s.extractCPURate(families, now)
	m.ResidentMem = int64(gaugeValue(families, "process_resident_memory_bytes"))
	m.OpenFDs = int64(gaugeValue(families, "process_open_fds"))

	// The worker's serving metrics have shifted names across versions
	m.ActiveSessions = int64(firstValue(families,
		"moshi_active_sessions", "worker_active_sessions", "active_sessions"))
	m.RequestsTotal = int64(firstValue(families,
		"moshi_requests_total", "worker_requests_total", "requests_total"))

	s.metrics.Store(m)
}

// fetch downloads and decodes the Prometheus text exposition.
func (s *WorkerScraper) fetch() (map[string]*dto.MetricFamily, error) {
	resp, err := s.httpClient.Get(s.url)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	decoder := expfmt.NewDecoder(resp.Body, expfmt.FmtText)
	families := make(map[string]*dto.MetricFamily)
	for {
		var mf dto.MetricFamily
		if err := decoder.Decode(&mf); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decode error: %w", err)
		}
		families[mf.GetName()] = &mf
	}
	return families, nil
}

// extractCPURate turns process_cpu_seconds_total into a usage percent
// by differencing against the previous scrape.
func (s *WorkerScraper) extractCPURate(families map[string]*dto.MetricFamily, now time.Time) float64 {
	cpuSeconds := counterValue(families, "process_cpu_seconds_total")
	if cpuSeconds == 0 {
		return 0
	}

	lastBits := s.lastCPUSeconds.Swap(math.Float64bits(cpuSeconds))
	lastTimeVal := s.lastCPUTime.Load()
	s.lastCPUTime.Store(now)

	if lastTimeVal == nil {
		return 0
	}
	elapsed := now.Sub(lastTimeVal.(time.Time)).Seconds()
	if elapsed <= 0 {
		return 0
	}

	delta := cpuSeconds - math.Float64frombits(lastBits)
	if delta < 0 {
		// Counter reset, worker restarted
		return 0
	}
	return delta / elapsed * 100
}

// gaugeValue returns the first gauge sample for a family, 0 if absent.
func gaugeValue(families map[string]*dto.MetricFamily, name string) float64 {
	mf, ok := families[name]
	if !ok || len(mf.GetMetric()) == 0 {
		return 0
	}
	return mf.GetMetric()[0].GetGauge().GetValue()
}

// counterValue returns the first counter sample for a family, 0 if absent.
func counterValue(families map[string]*dto.MetricFamily, name string) float64 {
	mf, ok := families[name]
	if !ok || len(mf.GetMetric()) == 0 {
		return 0
	}
	return mf.GetMetric()[0].GetCounter().GetValue()
}

// firstValue returns the first present family's sample among names,
// trying gauge then counter then untyped.
func firstValue(families map[string]*dto.MetricFamily, names ...string) float64 {
	for _, name := range names {
		mf, ok := families[name]
		if !ok || len(mf.GetMetric()) == 0 {
			continue
		}
		m := mf.GetMetric()[0]
		if m.GetGauge() != nil {
			return m.GetGauge().GetValue()
		}
		if m.GetCounter() != nil {
			return m.GetCounter().GetValue()
		}
		if m.GetUntyped() != nil {
			return m.GetUntyped().GetValue()
		}
	}
	return 0
}
