package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ajitpratap0/slotpool/pkg/pool"
)

// StatsSource is anything that can report pool statistics under a name.
// *pool.Pool[T] satisfies it for every T.
type StatsSource interface {
	Name() string
	Stats() pool.Stats
}

var (
	capacityDesc = prometheus.NewDesc(
		"slotpool_capacity", "Fixed number of slots in the pool", []string{"pool"}, nil)
	usedDesc = prometheus.NewDesc(
		"slotpool_used", "Slots currently holding a live value", []string{"pool"}, nil)
	availableDesc = prometheus.NewDesc(
		"slotpool_available", "Slots currently free", []string{"pool"}, nil)
	allocationsDesc = prometheus.NewDesc(
		"slotpool_allocations_total", "Successful allocations since Init", []string{"pool"}, nil)
	deallocationsDesc = prometheus.NewDesc(
		"slotpool_deallocations_total", "Successful deallocations since Init", []string{"pool"}, nil)
	exhaustedDesc = prometheus.NewDesc(
		"slotpool_exhausted_total", "Allocations refused because no slot was free", []string{"pool"}, nil)
	violationsDesc = prometheus.NewDesc(
		"slotpool_violations_total", "Rejected foreign or double frees", []string{"pool"}, nil)
)

// PoolCollector exports pool statistics at scrape time. Each source is read
// with a single Stats call so the values of one pool are mutually consistent.
type PoolCollector struct {
	mu      sync.RWMutex
	sources []StatsSource
}

// NewPoolCollector creates a collector over the given sources.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(metrics.NewPoolCollector(meshes, textures))
func NewPoolCollector(sources ...StatsSource) *PoolCollector {
	return &PoolCollector{sources: append([]StatsSource(nil), sources...)}
}

// Add starts exporting another source. Sources must have distinct names.
func (c *PoolCollector) Add(src StatsSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sources = append(c.sources, src)
}

// Describe implements prometheus.Collector.
func (c *PoolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- capacityDesc
	ch <- usedDesc
	ch <- availableDesc
	ch <- allocationsDesc
	ch <- deallocationsDesc
	ch <- exhaustedDesc
	ch <- violationsDesc
}

// Collect implements prometheus.Collector.
func (c *PoolCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	sources := append([]StatsSource(nil), c.sources...)
	c.mu.RUnlock()

	for _, src := range sources {
		name := src.Name()
		s := src.Stats()

		ch <- prometheus.MustNewConstMetric(capacityDesc, prometheus.GaugeValue, float64(s.Capacity), name)
		ch <- prometheus.MustNewConstMetric(usedDesc, prometheus.GaugeValue, float64(s.Used), name)
		ch <- prometheus.MustNewConstMetric(availableDesc, prometheus.GaugeValue, float64(s.Available), name)
		ch <- prometheus.MustNewConstMetric(allocationsDesc, prometheus.CounterValue, float64(s.Allocations), name)
		ch <- prometheus.MustNewConstMetric(deallocationsDesc, prometheus.CounterValue, float64(s.Deallocations), name)
		ch <- prometheus.MustNewConstMetric(exhaustedDesc, prometheus.CounterValue, float64(s.Exhausted), name)
		ch <- prometheus.MustNewConstMetric(violationsDesc, prometheus.CounterValue, float64(s.Violations), name)
	}
}
