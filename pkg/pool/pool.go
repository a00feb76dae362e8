package pool

import (
	"fmt"
	"math/bits"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ajitpratap0/slotpool/pkg/errors"
)

// Pool is a bounded object pool of T with stable slot identities.
//
// All slots live in one arena of capacity+2 cells; the last two cells are the
// active list root and the free stack root. Free slots form a LIFO stack
// threaded through next, live slots form a circular doubly linked ring
// through next and prev, so both allocation and deallocation are O(1).
//
// Init, Term, Allocate, Deallocate, Range, Validate and Stats serialize on a
// single mutex. Size, UsedCount and AvailableCount do not take the lock: they
// read atomically stored counters and are advisory under concurrent use.
//
// The zero value is an empty pool with default options, ready for Init.
type Pool[T any] struct {
	mu    sync.Mutex
	slots []slot[T]

	// written under mu, read lock-free by the count queries
	capacity atomic.Uint32
	count    atomic.Uint32

	allocations   uint64
	deallocations uint64
	exhausted     uint64
	violations    uint64

	opts    options
	release ReleaseFunc[T]
	ready   bool
}

// Stats is a consistent snapshot of pool counters.
type Stats struct {
	Capacity      uint32 `json:"capacity"`
	Used          uint32 `json:"used"`
	Available     uint32 `json:"available"`
	Allocations   uint64 `json:"allocations"`
	Deallocations uint64 `json:"deallocations"`
	Exhausted     uint64 `json:"exhausted"`
	Violations    uint64 `json:"violations"`
}

// New creates an empty pool. Call Init before allocating.
//
// It panics if a release hook registered with WithReleaseHook was built for a
// different element type.
func New[T any](opts ...Option) *Pool[T] {
	p := &Pool[T]{}
	p.configure(opts)
	return p
}

// NewWithCapacity creates a pool and initializes it with capacity slots.
func NewWithCapacity[T any](capacity uint32, opts ...Option) (*Pool[T], error) {
	p := New[T](opts...)
	if err := p.Init(capacity); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pool[T]) configure(opts []Option) {
	p.opts = defaultOptions()
	for _, opt := range opts {
		opt(&p.opts)
	}
	if p.opts.release != nil {
		fn, ok := p.opts.release.(ReleaseFunc[T])
		if !ok {
			panic(fmt.Sprintf("pool %s: release hook %T does not match element type", p.opts.name, p.opts.release))
		}
		p.release = fn
	}
	p.ready = true
}

// lazy defaults for zero-value pools; caller holds mu
func (p *Pool[T]) ensureConfigured() {
	if !p.ready {
		p.configure(nil)
	}
}

// Name returns the pool label.
func (p *Pool[T]) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureConfigured()
	return p.opts.name
}

// Init reserves the arena for capacity slots and links every slot into the
// free stack. Slot i receives SlotID(i); the stack is seeded in storage order
// so a fresh pool hands out slot 0 first, then 1, and so on.
//
// Init fails without changing any state if the pool is already initialized,
// if capacity is zero or above MaxCapacity, or if the arena cannot be
// reserved within the configured limit. A failed Init may be retried.
//
// Only the arena limit and a rejected allocation size are reported as
// ErrReservation. Without WithArenaLimit a capacity the machine cannot back
// may still end the process with a runtime out-of-memory error.
func (p *Pool[T]) Init(capacity uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureConfigured()

	if p.slots != nil {
		return p.fail("init", ErrAlreadyInitialized).
			WithDetail("capacity", p.capacity.Load())
	}
	if capacity == 0 || capacity > MaxCapacity {
		return p.fail("init", ErrInvalidCapacity).
			WithDetail("capacity", capacity).
			WithDetail("max_capacity", uint32(MaxCapacity))
	}

	need, ok := arenaBytes[T](capacity)
	if !ok || (p.opts.arenaLimit > 0 && need > p.opts.arenaLimit) {
		return p.fail("init", ErrReservation).
			WithDetail("capacity", capacity).
			WithDetail("bytes", need).
			WithDetail("limit", p.opts.arenaLimit)
	}

	slots, err := reserve[T](capacity)
	if err != nil {
		return p.fail("init", ErrReservation).
			WithDetail("capacity", capacity).
			WithDetail("cause", err.Error())
	}

	active, free := capacity, capacity+1
	for i := uint32(0); i < capacity; i++ {
		s := &slots[i]
		s.id = SlotID(i)
		s.next = i + 1
		s.prev = free
	}
	slots[capacity-1].next = free

	slots[active] = slot[T]{id: ActiveSentinel, next: active, prev: active}
	slots[free] = slot[T]{id: FreeSentinel, next: 0, prev: free}

	p.slots = slots
	p.count.Store(0)
	p.capacity.Store(capacity)

	p.opts.logger.Debug("pool initialized",
		zap.String("pool", p.opts.name),
		zap.Uint32("capacity", capacity),
		zap.Uint64("arena_bytes", need))
	return nil
}

// Allocate takes a slot from the free stack, appends it to the tail of the
// active list, stores a fresh zero T in it and, if init is non-nil, calls
// init with the slot id and the new value. The returned pointer stays valid
// until the matching Deallocate or Term.
//
// It returns nil, false when the pool is exhausted or not initialized.
// If init panics the slot is returned to the free stack before the panic
// propagates.
func (p *Pool[T]) Allocate(init InitFunc[T]) (*T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.slots == nil {
		return nil, false
	}
	capacity, count := p.capacity.Load(), p.count.Load()
	if count+1 > capacity || p.freeEmpty() {
		p.exhausted++
		return nil, false
	}

	idx := p.popFree()
	p.linkTail(idx)
	p.count.Store(count + 1)

	s := &p.slots[idx]
	var zero T
	s.value = zero
	s.live = true

	if init != nil {
		done := false
		defer func() {
			if !done {
				p.unlink(idx)
				s.live = false
				s.value = zero
				p.pushFree(idx)
				p.count.Store(count)
			}
		}()
		init(s.id, &s.value)
		done = true
	}

	p.allocations++
	return &s.value, true
}

// MustAllocate is like Allocate but panics with ErrExhausted on failure.
func (p *Pool[T]) MustAllocate(init InitFunc[T]) *T {
	v, ok := p.Allocate(init)
	if !ok {
		panic(errors.Wrap(ErrExhausted, errors.ErrorTypeCapacity, "allocate").
			WithDetail("pool", p.Name()).
			WithDetail("capacity", p.Size()))
	}
	return v
}

// Deallocate returns v to the pool. v must have come from Allocate on this
// pool. A nil v is a no-op.
//
// Pointers outside the arena yield ErrForeignValue and pointers to slots that
// are already free yield ErrDoubleFree; in both cases the pool is left
// unchanged. The release hook, if any, runs before the slot is unlinked, then
// the slot is reset to the zero value and pushed on the free stack.
func (p *Pool[T]) Deallocate(v *T) error {
	if v == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.slots == nil {
		p.ensureConfigured()
		return p.violation("deallocate", ErrNotInitialized)
	}
	idx, ok := p.locate(v)
	if !ok {
		return p.violation("deallocate", ErrForeignValue)
	}
	s := &p.slots[idx]
	if !s.live {
		return p.violation("deallocate", ErrDoubleFree).WithDetail("slot", s.id)
	}

	if p.release != nil {
		p.release(s.id, &s.value)
	}

	p.unlink(idx)
	var zero T
	s.value = zero
	s.live = false
	p.pushFree(idx)
	p.count.Store(p.count.Load() - 1)
	p.deallocations++
	return nil
}

// Size returns the fixed capacity, or zero for an empty pool.
func (p *Pool[T]) Size() uint32 {
	return p.capacity.Load()
}

// UsedCount returns the number of live values. It does not synchronize with
// in-flight Allocate or Deallocate calls and may be stale.
func (p *Pool[T]) UsedCount() uint32 {
	return p.count.Load()
}

// AvailableCount returns Size minus UsedCount. The two counters are read
// separately, so under concurrent mutation the result is advisory.
func (p *Pool[T]) AvailableCount() uint32 {
	capacity, used := p.capacity.Load(), p.count.Load()
	if used > capacity {
		return 0
	}
	return capacity - used
}

// Stats returns a consistent snapshot taken under the pool lock.
func (p *Pool[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	capacity, used := p.capacity.Load(), p.count.Load()
	return Stats{
		Capacity:      capacity,
		Used:          used,
		Available:     capacity - used,
		Allocations:   p.allocations,
		Deallocations: p.deallocations,
		Exhausted:     p.exhausted,
		Violations:    p.violations,
	}
}

// Term releases the arena and resets the pool to the empty state. Live values
// are passed to the release hook in allocation order first. Term on an empty
// pool is a no-op; after Term the pool may be initialized again.
func (p *Pool[T]) Term() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.slots == nil {
		return
	}

	live := p.count.Load()
	capacity := p.capacity.Load()
	// teardown runs even if a release hook panics
	defer func() {
		p.slots = nil
		p.capacity.Store(0)
		p.count.Store(0)
		p.allocations, p.deallocations = 0, 0
		p.exhausted, p.violations = 0, 0
		p.opts.logger.Debug("pool terminated",
			zap.String("pool", p.opts.name),
			zap.Uint32("capacity", capacity),
			zap.Uint32("live", live))
	}()

	if p.release != nil {
		active := p.activeRoot()
		for idx := p.slots[active].next; idx != active; idx = p.slots[idx].next {
			s := &p.slots[idx]
			p.release(s.id, &s.value)
		}
	}
}

// fail builds a wrapped error for a rejected call; caller holds mu.
func (p *Pool[T]) fail(op string, sentinel *errors.Error) *errors.Error {
	return errors.Wrap(sentinel, sentinel.Type, op).WithDetail("pool", p.opts.name)
}

// violation records and logs a caller contract violation; caller holds mu.
func (p *Pool[T]) violation(op string, sentinel *errors.Error) *errors.Error {
	p.violations++
	p.opts.logger.Warn("pool contract violation",
		zap.String("pool", p.opts.name),
		zap.String("op", op),
		zap.String("reason", sentinel.Message))
	return p.fail(op, sentinel)
}

// arenaBytes returns the arena size for capacity slots plus both sentinels.
func arenaBytes[T any](capacity uint32) (uint64, bool) {
	hi, lo := bits.Mul64(uint64(capacity)+2, uint64(slotSize[T]()))
	return lo, hi == 0
}

// reserve allocates the arena, turning allocation panics such as
// "len out of range" into an error.
func reserve[T any](capacity uint32) (slots []slot[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			slots, err = nil, fmt.Errorf("reserve %d slots: %v", uint64(capacity)+2, r)
		}
	}()
	n := int(capacity) + 2
	return make([]slot[T], n), nil
}
