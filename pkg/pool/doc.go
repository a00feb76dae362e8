// Package pool implements a bounded, fixed-capacity object pool whose slots
// keep a stable identity for the lifetime of the arena.
//
// # Architecture
//
// A Pool[T] owns one arena of capacity+2 slots. The two extra slots are list
// roots: the active root anchors a circular doubly linked ring of live slots,
// the free root anchors a LIFO stack of unused slots. Links are arena indices,
// not pointers, so the whole structure is a single slice the GC sees as one
// object.
//
//	arena: [ 0 | 1 | ... | capacity-1 | active root | free root ]
//
// Allocation pops the free head and appends it to the ring tail; deallocation
// unlinks the slot from the ring and pushes it back on the stack. Both are
// O(1) and neither traverses a list.
//
// # Stable Identity
//
// Slot i carries SlotID(i) from Init until Term. The id is handed to the
// InitFunc on every allocation so callers can keep parallel tables (GPU
// resource handles, descriptor indices) keyed by slot rather than by
// allocation order:
//
//	textures := make([]TextureHandle, 256)
//	p := pool.New[Material]()
//	_ = p.Init(256)
//	m, ok := p.Allocate(func(id pool.SlotID, m *Material) {
//		m.Texture = &textures[id]
//	})
//
// The free stack is seeded in storage order, so a fresh pool hands out slot 0,
// then 1, and so on. Because the stack is LIFO, the most recently freed slot is
// the next one reused.
//
// # Ownership Checks
//
// Deallocate maps the pointer back to its slot by address arithmetic over the
// arena. Pointers from outside the arena are rejected with ErrForeignValue and
// slots that are already free with ErrDoubleFree; neither case mutates the
// pool. Freed slots are reset to the zero value of T, so a stale pointer reads
// a zero value rather than the previous contents.
//
// # Concurrency
//
// Init, Term, Allocate, Deallocate, Range, Validate and Stats are serialized
// by one mutex and are linearizable with respect to each other. Hooks run
// inside that critical section and must not re-enter the pool.
//
// Size, UsedCount and AvailableCount read atomic counters without taking the
// lock. They never tear, but may be stale by any number of in-flight
// operations; use Stats for a consistent snapshot.
//
// # Lifecycle
//
//	p := pool.New[Widget](pool.WithName("widgets"))
//	if err := p.Init(64); err != nil {
//		return err
//	}
//	defer p.Term()
//
//	w, ok := p.Allocate(nil)
//	if !ok {
//		// capacity exhausted
//	}
//	defer p.Deallocate(w)
package pool
