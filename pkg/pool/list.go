package pool

import "unsafe"

// List primitives. Every function below expects p.mu to be held and the
// arena to be present.

func (p *Pool[T]) activeRoot() uint32 { return uint32(len(p.slots) - 2) }
func (p *Pool[T]) freeRoot() uint32   { return uint32(len(p.slots) - 1) }

func (p *Pool[T]) freeEmpty() bool {
	free := p.freeRoot()
	return p.slots[free].next == free
}

// popFree removes and returns the head of the free stack.
func (p *Pool[T]) popFree() uint32 {
	free := p.freeRoot()
	idx := p.slots[free].next
	p.slots[free].next = p.slots[idx].next
	return idx
}

// pushFree makes idx the new head of the free stack.
func (p *Pool[T]) pushFree(idx uint32) {
	free := p.freeRoot()
	p.slots[idx].next = p.slots[free].next
	p.slots[idx].prev = free
	p.slots[free].next = idx
}

// linkTail splices idx in front of the active root, i.e. at the tail of the
// ring, so forward traversal sees slots in allocation order.
func (p *Pool[T]) linkTail(idx uint32) {
	active := p.activeRoot()
	tail := p.slots[active].prev
	p.slots[idx].prev = tail
	p.slots[idx].next = active
	p.slots[tail].next = idx
	p.slots[active].prev = idx
}

// unlink removes idx from the active ring by joining its neighbours.
func (p *Pool[T]) unlink(idx uint32) {
	s := &p.slots[idx]
	p.slots[s.prev].next = s.next
	p.slots[s.next].prev = s.prev
	s.next, s.prev = idx, idx
}

// locate maps a value pointer back to its arena index using the slot stride.
// Only addresses of real slot values are accepted; sentinels and pointers
// into the middle of a slot are rejected.
func (p *Pool[T]) locate(v *T) (uint32, bool) {
	capacity := uintptr(p.capacity.Load())
	if capacity == 0 {
		return 0, false
	}
	base := uintptr(unsafe.Pointer(&p.slots[0].value))
	addr := uintptr(unsafe.Pointer(v))
	if addr < base {
		return 0, false
	}
	stride := unsafe.Sizeof(p.slots[0])
	off := addr - base
	idx := off / stride
	if off%stride != 0 || idx >= capacity {
		return 0, false
	}
	if &p.slots[idx].value != v {
		return 0, false
	}
	return uint32(idx), true
}
