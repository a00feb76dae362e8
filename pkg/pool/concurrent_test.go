package pool

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tagged struct {
	owner int32
	id    SlotID
}

func TestPool_ConcurrentStress(t *testing.T) {
	const (
		capacity = 64
		workers  = 8
	)
	duration := 200 * time.Millisecond
	if testing.Short() {
		duration = 50 * time.Millisecond
	}

	p, err := NewWithCapacity[tagged](capacity, WithName("stress"))
	require.NoError(t, err)
	defer p.Term()

	owners := make([]atomic.Int32, capacity)
	var doubleHandout, overCapacity atomic.Int64
	held := make([][]*tagged, workers)

	deadline := time.Now().Add(duration)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int32) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(worker) + 1))
			var mine []*tagged

			for time.Now().Before(deadline) {
				if rng.Intn(2) == 0 || len(mine) == 0 {
					v, ok := p.Allocate(func(id SlotID, v *tagged) {
						v.owner = worker + 1
						v.id = id
					})
					if !ok {
						continue
					}
					if !owners[v.id].CompareAndSwap(0, worker+1) {
						doubleHandout.Add(1)
					}
					mine = append(mine, v)
				} else {
					j := rng.Intn(len(mine))
					v := mine[j]
					mine[j] = mine[len(mine)-1]
					mine = mine[:len(mine)-1]

					if v.owner != worker+1 {
						doubleHandout.Add(1)
					}
					owners[v.id].Store(0)
					if err := p.Deallocate(v); err != nil {
						t.Errorf("deallocate slot %d: %v", v.id, err)
						return
					}
				}
				if p.UsedCount() > capacity {
					overCapacity.Add(1)
				}
			}
			held[worker] = mine
		}(int32(w))
	}
	wg.Wait()

	assert.Zero(t, doubleHandout.Load(), "slot handed to two live owners")
	assert.Zero(t, overCapacity.Load(), "used count observed above capacity")
	require.NoError(t, p.Validate())

	var total int
	for _, mine := range held {
		total += len(mine)
	}
	seen := make(map[SlotID]bool)
	p.Range(func(id SlotID, v *tagged) bool {
		assert.False(t, seen[id], "slot %d listed twice", id)
		seen[id] = true
		assert.Equal(t, id, v.id)
		return true
	})
	assert.Len(t, seen, total)
	assert.Equal(t, uint32(total), p.UsedCount())

	for _, mine := range held {
		for _, v := range mine {
			require.NoError(t, p.Deallocate(v))
		}
	}
	assert.Zero(t, p.UsedCount())
	assert.Equal(t, uint32(capacity), p.AvailableCount())
	require.NoError(t, p.Validate())

	stats := p.Stats()
	assert.Equal(t, stats.Allocations, stats.Deallocations)
	assert.Zero(t, stats.Violations)
}

func TestPool_ConcurrentQueriesStayInRange(t *testing.T) {
	const capacity = 8
	p, err := NewWithCapacity[int](capacity)
	require.NoError(t, err)
	defer p.Term()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if v, ok := p.Allocate(nil); ok {
					_ = p.Deallocate(v)
				}
			}
		}()
	}

	for i := 0; i < 10000; i++ {
		used := p.UsedCount()
		assert.LessOrEqual(t, used, uint32(capacity))
		assert.LessOrEqual(t, p.AvailableCount(), uint32(capacity))
		assert.Equal(t, uint32(capacity), p.Size())
	}
	close(stop)
	wg.Wait()
	assert.Zero(t, p.UsedCount())
}
