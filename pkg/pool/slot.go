package pool

import (
	"math"
	"unsafe"
)

// SlotID is the stable identity of a slot. It is assigned once, in storage
// order, when the arena is initialized and never changes until Term. Callers
// use it to correlate a pooled value with parallel tables kept outside the
// pool, independent of allocation order.
type SlotID uint32

const (
	// ActiveSentinel is the marker id carried by the active list root.
	ActiveSentinel SlotID = math.MaxUint32
	// FreeSentinel is the marker id carried by the free stack root.
	FreeSentinel SlotID = math.MaxUint32 - 1
	// MaxCapacity is the largest capacity a pool can be initialized with.
	// The two sentinels occupy the arena indices capacity and capacity+1.
	MaxCapacity = math.MaxUint32 - 2
)

// IsSentinel reports whether id is one of the two list-root markers.
func (id SlotID) IsSentinel() bool {
	return id == ActiveSentinel || id == FreeSentinel
}

// InitFunc is the lifecycle hook invoked right after a value is constructed
// in its slot. It runs while the pool lock is held and must not call back
// into the same pool.
type InitFunc[T any] func(id SlotID, value *T)

// ReleaseFunc is invoked for a live value before its slot is returned to the
// free stack, either by Deallocate or by Term. Same locking rules as InitFunc.
type ReleaseFunc[T any] func(id SlotID, value *T)

// slot is one arena cell. value is kept as the first field so that the
// address of a value is the address of its slot.
type slot[T any] struct {
	value T
	id    SlotID
	// next/prev are arena indices. On the free stack only next is used.
	next uint32
	prev uint32
	live bool
}

// slotSize returns the arena stride for T.
func slotSize[T any]() uintptr {
	return unsafe.Sizeof(*(*slot[T])(nil))
}
