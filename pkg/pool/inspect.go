package pool

import (
	"github.com/ajitpratap0/slotpool/pkg/errors"
)

// SlotOf returns the stable id of a live value owned by the pool.
func (p *Pool[T]) SlotOf(v *T) (SlotID, bool) {
	if v == nil {
		return 0, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.slots == nil {
		return 0, false
	}
	idx, ok := p.locate(v)
	if !ok || !p.slots[idx].live {
		return 0, false
	}
	return p.slots[idx].id, true
}

// At returns the live value stored in slot id.
func (p *Pool[T]) At(id SlotID) (*T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.slots == nil || uint32(id) >= p.capacity.Load() {
		return nil, false
	}
	s := &p.slots[id]
	if !s.live {
		return nil, false
	}
	return &s.value, true
}

// Range calls fn for every live value in allocation order until fn returns
// false. The pool lock is held for the whole walk, so fn must not call back
// into the pool.
func (p *Pool[T]) Range(fn func(id SlotID, value *T) bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.slots == nil {
		return
	}
	active := p.activeRoot()
	for idx := p.slots[active].next; idx != active; idx = p.slots[idx].next {
		s := &p.slots[idx]
		if !fn(s.id, &s.value) {
			return
		}
	}
}

// Validate walks both lists and checks the structural invariants: count is
// within capacity, the active ring is doubly consistent and holds exactly
// count live slots, the free stack reaches its root without revisiting a
// slot, every real slot sits on exactly one list, and slot ids are the
// storage-order permutation assigned by Init.
func (p *Pool[T]) Validate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureConfigured()

	capacity, count := p.capacity.Load(), p.count.Load()
	if p.slots == nil {
		if capacity != 0 || count != 0 {
			return p.corrupt("empty pool has non-zero counters").
				WithDetail("capacity", capacity).
				WithDetail("count", count)
		}
		return nil
	}
	if uint64(len(p.slots)) != uint64(capacity)+2 {
		return p.corrupt("arena size does not match capacity").
			WithDetail("arena", len(p.slots)).
			WithDetail("capacity", capacity)
	}
	if count > capacity {
		return p.corrupt("count exceeds capacity").
			WithDetail("count", count).
			WithDetail("capacity", capacity)
	}

	const (
		onNone uint8 = iota
		onActive
		onFree
	)
	owner := make([]uint8, capacity)

	for i := uint32(0); i < capacity; i++ {
		if p.slots[i].id != SlotID(i) {
			return p.corrupt("slot id changed").
				WithDetail("index", i).
				WithDetail("slot", p.slots[i].id)
		}
	}

	active, free := capacity, capacity+1
	if p.slots[active].id != ActiveSentinel || p.slots[free].id != FreeSentinel {
		return p.corrupt("sentinel marker overwritten")
	}

	var used uint32
	prev := active
	for cur := p.slots[active].next; cur != active; prev, cur = cur, p.slots[cur].next {
		if cur >= capacity {
			return p.corrupt("active link leaves the arena").WithDetail("index", cur)
		}
		if owner[cur] != onNone {
			return p.corrupt("slot visited twice on active list").WithDetail("slot", SlotID(cur))
		}
		if p.slots[cur].prev != prev {
			return p.corrupt("active back link mismatch").
				WithDetail("slot", SlotID(cur)).
				WithDetail("prev", p.slots[cur].prev).
				WithDetail("expected", prev)
		}
		if !p.slots[cur].live {
			return p.corrupt("free slot on active list").WithDetail("slot", SlotID(cur))
		}
		owner[cur] = onActive
		used++
	}
	if p.slots[active].prev != prev {
		return p.corrupt("active root back link mismatch").
			WithDetail("prev", p.slots[active].prev).
			WithDetail("expected", prev)
	}
	if used != count {
		return p.corrupt("active list length differs from count").
			WithDetail("listed", used).
			WithDetail("count", count)
	}

	var available uint32
	for cur := p.slots[free].next; cur != free; cur = p.slots[cur].next {
		if cur >= capacity {
			return p.corrupt("free link leaves the arena").WithDetail("index", cur)
		}
		switch owner[cur] {
		case onActive:
			return p.corrupt("slot on both lists").WithDetail("slot", SlotID(cur))
		case onFree:
			return p.corrupt("slot visited twice on free stack").WithDetail("slot", SlotID(cur))
		}
		if p.slots[cur].live {
			return p.corrupt("live slot on free stack").WithDetail("slot", SlotID(cur))
		}
		owner[cur] = onFree
		available++
	}
	if used+available != capacity {
		return p.corrupt("slots lost from both lists").
			WithDetail("active", used).
			WithDetail("free", available).
			WithDetail("capacity", capacity)
	}
	return nil
}

func (p *Pool[T]) corrupt(reason string) *errors.Error {
	return errors.Wrap(ErrCorrupted, errors.ErrorTypeCorruption, reason).
		WithDetail("pool", p.opts.name)
}
