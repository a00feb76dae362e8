package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/slotpool/pkg/errors"
)

// corruptedPool returns a pool of capacity 4 with slots 0 and 1 live and
// slots 2, 3 on the free stack (head first).
func corruptedPool(t *testing.T) *Pool[int] {
	t.Helper()
	p, err := NewWithCapacity[int](4)
	require.NoError(t, err)
	t.Cleanup(p.Term)
	_, _ = p.Allocate(nil)
	_, _ = p.Allocate(nil)
	require.NoError(t, p.Validate())
	return p
}

func TestValidate_DetectsCorruption(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(p *Pool[int])
		reason  string
	}{
		{
			name:    "count drift",
			corrupt: func(p *Pool[int]) { p.count.Store(3) },
			reason:  "active list length differs from count",
		},
		{
			name:    "count over capacity",
			corrupt: func(p *Pool[int]) { p.count.Store(5) },
			reason:  "count exceeds capacity",
		},
		{
			name:    "broken back link",
			corrupt: func(p *Pool[int]) { p.slots[1].prev = 3 },
			reason:  "active back link mismatch",
		},
		{
			name:    "root back link",
			corrupt: func(p *Pool[int]) { p.slots[p.activeRoot()].prev = 0 },
			reason:  "active root back link mismatch",
		},
		{
			name: "slot on both lists",
			corrupt: func(p *Pool[int]) {
				// free stack: root -> 2 -> 0
				p.slots[p.freeRoot()].next = 2
				p.slots[2].next = 0
			},
			reason: "slot on both lists",
		},
		{
			name: "lost slot",
			corrupt: func(p *Pool[int]) {
				p.slots[p.freeRoot()].next = 2
				p.slots[2].next = p.freeRoot()
			},
			reason: "slots lost from both lists",
		},
		{
			name: "free stack cycle",
			corrupt: func(p *Pool[int]) {
				p.slots[p.freeRoot()].next = 2
				p.slots[2].next = 2
			},
			reason: "slot visited twice on free stack",
		},
		{
			name:    "id rewritten",
			corrupt: func(p *Pool[int]) { p.slots[2].id = 7 },
			reason:  "slot id changed",
		},
		{
			name:    "sentinel overwritten",
			corrupt: func(p *Pool[int]) { p.slots[p.freeRoot()].id = 0 },
			reason:  "sentinel marker overwritten",
		},
		{
			name:    "live flag on free slot",
			corrupt: func(p *Pool[int]) { p.slots[2].live = true },
			reason:  "live slot on free stack",
		},
		{
			name:    "active link out of arena",
			corrupt: func(p *Pool[int]) { p.slots[0].next = p.freeRoot() },
			reason:  "active link leaves the arena",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := corruptedPool(t)
			p.mu.Lock()
			tt.corrupt(p)
			p.mu.Unlock()

			err := p.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrCorrupted)
			assert.True(t, errors.IsType(err, errors.ErrorTypeCorruption))
			assert.Contains(t, err.Error(), tt.reason)

			// restore a consistent state so cleanup Term sees a sane pool
			p.mu.Lock()
			p.slots = nil
			p.capacity.Store(0)
			p.count.Store(0)
			p.mu.Unlock()
		})
	}
}

func TestValidate_EmptyPoolWithCounters(t *testing.T) {
	p := New[int]()
	p.capacity.Store(2)
	err := p.Validate()
	assert.ErrorIs(t, err, ErrCorrupted)
	p.capacity.Store(0)
	assert.NoError(t, p.Validate())
}

func TestArenaBytes(t *testing.T) {
	n, ok := arenaBytes[int64](10)
	require.True(t, ok)
	assert.Equal(t, uint64(12)*uint64(slotSize[int64]()), n)

	_, ok = arenaBytes[[1 << 33]byte](MaxCapacity)
	assert.False(t, ok, "overflow is reported")
}
