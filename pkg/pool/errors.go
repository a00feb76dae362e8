package pool

import "github.com/ajitpratap0/slotpool/pkg/errors"

// Sentinel errors. Pool methods return them wrapped with operation context;
// match with errors.Is.
var (
	// ErrAlreadyInitialized is returned by Init on a pool that holds an arena.
	ErrAlreadyInitialized = errors.Define(errors.ErrorTypeState, "pool already initialized")
	// ErrNotInitialized is returned by operations that need an arena.
	ErrNotInitialized = errors.Define(errors.ErrorTypeState, "pool not initialized")
	// ErrInvalidCapacity is returned by Init for zero or oversized capacities.
	ErrInvalidCapacity = errors.Define(errors.ErrorTypeValidation, "invalid pool capacity")
	// ErrReservation is returned by Init when the arena cannot be reserved.
	ErrReservation = errors.Define(errors.ErrorTypeResource, "arena reservation failed")
	// ErrExhausted is the panic value of MustAllocate on a full pool.
	ErrExhausted = errors.Define(errors.ErrorTypeCapacity, "pool capacity exhausted")
	// ErrForeignValue is returned by Deallocate for a pointer outside the arena.
	ErrForeignValue = errors.Define(errors.ErrorTypeOwnership, "value does not belong to this pool")
	// ErrDoubleFree is returned by Deallocate for a slot that is already free.
	ErrDoubleFree = errors.Define(errors.ErrorTypeOwnership, "value already deallocated")
	// ErrCorrupted is wrapped by Validate for every broken invariant.
	ErrCorrupted = errors.Define(errors.ErrorTypeCorruption, "pool lists corrupted")
)
