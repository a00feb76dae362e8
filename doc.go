// Package slotpool is a bounded, fixed-capacity object pool for Go.
//
// A pool reserves storage for exactly N values of one type at initialization.
// Allocate and Deallocate are O(1), never touch the heap after Init, and hand
// freed slots back out in LIFO order. Every slot carries a stable index so
// callers can keep parallel tables keyed by slot.
//
// # Layout
//
//   - pkg/pool: the allocator, its ownership checks and invariant validation
//   - pkg/errors: structured errors with types, details and stacks
//   - pkg/metrics: Prometheus collector over pool statistics
//   - pkg/observability: OpenTelemetry tracing setup and span helpers
//   - pkg/config, pkg/logger: YAML configuration and zap logging
//   - internal/stress: concurrent allocate/free driver with double hand-out detection
//   - cmd/slotpool: CLI with demo, stress and config commands
//
// # Quick Start
//
//	p := pool.New[Mesh](pool.WithName("meshes"))
//	if err := p.Init(1024); err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Term()
//
//	m, ok := p.Allocate(func(id pool.SlotID, m *Mesh) {
//	    m.Texture = textures[id]
//	})
//	if !ok {
//	    // pool exhausted
//	}
//	defer p.Deallocate(m)
//
// Run the stress test from the command line:
//
//	slotpool stress --capacity 4096 --workers 16 --duration 30s
package slotpool
