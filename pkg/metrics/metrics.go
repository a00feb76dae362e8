// Package metrics provides Prometheus instrumentation for slot pools.
//
// # Overview
//
// The metrics package provides:
//   - PoolCollector, a prometheus.Collector that snapshots pool statistics
//   - Pre-defined latency and throughput metrics for pool operations
//   - Timer, ThroughputTracker and LatencyTracker utilities
//
// # Basic Usage
//
//	p, _ := pool.NewWithCapacity[mesh](1024, pool.WithName("meshes"))
//	prometheus.MustRegister(metrics.NewPoolCollector(p))
//
//	timer := metrics.NewTimer("allocate")
//	m, ok := p.Allocate(nil)
//	metrics.OperationLatency.WithLabelValues("allocate", p.Name()).
//	    Observe(float64(timer.Stop().Nanoseconds()))
//
// # Metric Types
//
// Gauges report capacity and occupancy at scrape time. Counters mirror the
// pool's own monotonic counters, which restart from zero after Term.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationLatency tracks the distribution of pool operation latencies in nanoseconds.
	// Labels: operation (allocate/deallocate/validate), pool
	//
	// Example:
	//	start := time.Now()
	//	p.Deallocate(v)
	//	metrics.OperationLatency.WithLabelValues("deallocate", p.Name()).
	//	    Observe(float64(time.Since(start).Nanoseconds()))
	OperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "slotpool_operation_latency_nanoseconds",
			Help: "Pool operation latency in nanoseconds",
			Buckets: []float64{
				50,     // uncontended lock and list splice
				100,    //
				250,    //
				1000,   // 1μs
				10000,  // 10μs - contended
				100000, // 100μs
				1e6,    // 1ms - full validation of large pools
				1e7,    // 10ms
			},
		},
		[]string{"operation", "pool"},
	)

	// Throughput tracks pool operations per second
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "slotpool_throughput_operations_per_second",
			Help: "Current throughput in pool operations per second",
		},
		[]string{"pool"},
	)
)

// Timer provides a simple timing mechanism for measuring operation durations.
// It captures the start time on creation and calculates elapsed time on stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
// The name parameter is for identification in logs or metrics.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the name the timer was created with.
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. It can be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ObserveDuration stops the timer and records it in OperationLatency using
// the timer name as the operation label.
func (t *Timer) ObserveDuration(pool string) time.Duration {
	d := t.Stop()
	OperationLatency.WithLabelValues(t.name, pool).Observe(float64(d.Nanoseconds()))
	return d
}

// ThroughputTracker tracks operations per second over time windows.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64     // Operations since last reset
	lastReset time.Time // Time of last reset
	pool      string
}

// NewThroughputTracker creates a new throughput tracker for the named pool.
func NewThroughputTracker(pool string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		pool:      pool,
	}
}

// Increment adds n to the operation count. Safe for concurrent use.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset calculates the current throughput (operations/second),
// updates the Prometheus metric, resets the counter, and returns
// the calculated throughput. Safe for concurrent use.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.pool).Set(throughput)

	return throughput
}

// LatencyTracker keeps a sliding window of recent latencies for percentile
// queries.
type LatencyTracker struct {
	mu      sync.Mutex
	values  []time.Duration
	next    int
	full    bool
	maxSize int
}

// NewLatencyTracker creates a new latency tracker holding at most maxSize
// samples. maxSize below 1 is treated as 1.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize < 1 {
		maxSize = 1
	}
	return &LatencyTracker{
		values:  make([]time.Duration, 0, maxSize),
		maxSize: maxSize,
	}
}

// Record records a latency value, overwriting the oldest once the window is full.
func (l *LatencyTracker) Record(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.full {
		l.values = append(l.values, d)
		if len(l.values) == l.maxSize {
			l.full = true
		}
		return
	}
	l.values[l.next] = d
	l.next = (l.next + 1) % l.maxSize
}

// Count returns the number of samples in the window.
func (l *LatencyTracker) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.values)
}

// GetPercentile returns the percentile value (0-100) over the current window.
func (l *LatencyTracker) GetPercentile(p float64) time.Duration {
	l.mu.Lock()
	sorted := append([]time.Duration(nil), l.values...)
	l.mu.Unlock()

	if len(sorted) == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	index := int(float64(len(sorted)) * p / 100)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	if index < 0 {
		index = 0
	}
	return sorted[index]
}
