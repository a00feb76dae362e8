package pool

import (
	"math/rand"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/slotpool/pkg/errors"
)

type widget struct {
	id   SlotID
	name string
	refs []int
}

func newWidgetPool(t *testing.T, capacity uint32, opts ...Option) *Pool[widget] {
	t.Helper()
	opts = append([]Option{WithName(t.Name()), WithLogger(zaptest.NewLogger(t))}, opts...)
	p, err := NewWithCapacity[widget](capacity, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Term)
	return p
}

func stamp(ids *[]SlotID) InitFunc[widget] {
	return func(id SlotID, w *widget) {
		*ids = append(*ids, id)
		w.id = id
	}
}

func TestPool_ExampleScenario(t *testing.T) {
	p := newWidgetPool(t, 3)
	var ids []SlotID

	a, ok := p.Allocate(stamp(&ids))
	require.True(t, ok)
	b, ok := p.Allocate(stamp(&ids))
	require.True(t, ok)
	assert.Equal(t, []SlotID{0, 1}, ids)
	assert.Equal(t, SlotID(1), b.id)

	require.NoError(t, p.Deallocate(a))

	c, ok := p.Allocate(stamp(&ids))
	require.True(t, ok)
	assert.Same(t, a, c, "freed slot is reused first")
	assert.Equal(t, SlotID(0), ids[2])

	d, ok := p.Allocate(stamp(&ids))
	require.True(t, ok)
	assert.Equal(t, SlotID(2), d.id)

	e, ok := p.Allocate(stamp(&ids))
	assert.False(t, ok)
	assert.Nil(t, e)
	assert.Equal(t, []SlotID{0, 1, 0, 2}, ids, "hook does not fire on exhaustion")

	assert.Equal(t, uint32(3), p.UsedCount())
	assert.Equal(t, uint32(0), p.AvailableCount())
	assert.NoError(t, p.Validate())
}

func TestPool_CapacityInvariant(t *testing.T) {
	const capacity = 16
	p := newWidgetPool(t, capacity)
	rng := rand.New(rand.NewSource(7))
	var live []*widget

	for i := 0; i < 5000; i++ {
		if rng.Intn(3) > 0 {
			if w, ok := p.Allocate(nil); ok {
				live = append(live, w)
			} else {
				assert.Len(t, live, capacity)
			}
		} else if len(live) > 0 {
			j := rng.Intn(len(live))
			require.NoError(t, p.Deallocate(live[j]))
			live[j] = live[len(live)-1]
			live = live[:len(live)-1]
		}

		require.Equal(t, p.Size(), p.UsedCount()+p.AvailableCount())
		require.LessOrEqual(t, p.UsedCount(), p.Size())
		require.Equal(t, uint32(len(live)), p.UsedCount())
		if i%97 == 0 {
			require.NoError(t, p.Validate())
		}
	}
	require.NoError(t, p.Validate())
}

func TestPool_Exhaustion(t *testing.T) {
	const capacity = 4
	p := newWidgetPool(t, capacity)

	live := make([]*widget, 0, capacity)
	for i := 0; i < capacity; i++ {
		w, ok := p.Allocate(nil)
		require.True(t, ok)
		live = append(live, w)
	}

	w, ok := p.Allocate(nil)
	assert.False(t, ok)
	assert.Nil(t, w)
	assert.Equal(t, uint64(1), p.Stats().Exhausted)

	require.NoError(t, p.Deallocate(live[2]))
	w, ok = p.Allocate(nil)
	require.True(t, ok)
	assert.Same(t, live[2], w)

	id, ok := p.SlotOf(w)
	require.True(t, ok)
	assert.Equal(t, SlotID(2), id)
}

func TestPool_SingleSlotAlwaysReportsZero(t *testing.T) {
	p := newWidgetPool(t, 1)

	for i := 0; i < 100; i++ {
		var seen SlotID = ActiveSentinel
		w, ok := p.Allocate(func(id SlotID, _ *widget) { seen = id })
		require.True(t, ok)
		require.Equal(t, SlotID(0), seen)
		require.NoError(t, p.Deallocate(w))
	}
}

func TestPool_IndexStability(t *testing.T) {
	const capacity = 10
	p := newWidgetPool(t, capacity)
	rng := rand.New(rand.NewSource(42))
	byID := make(map[SlotID]*widget)
	var live []*widget

	for i := 0; i < 2000; i++ {
		if rng.Intn(2) == 0 {
			var got SlotID
			w, ok := p.Allocate(func(id SlotID, _ *widget) { got = id })
			if !ok {
				continue
			}
			require.Less(t, uint32(got), uint32(capacity))
			if prev, seen := byID[got]; seen {
				assert.Same(t, prev, w, "slot %d moved", got)
			}
			byID[got] = w
			live = append(live, w)
		} else if len(live) > 0 {
			j := rng.Intn(len(live))
			require.NoError(t, p.Deallocate(live[j]))
			live = append(live[:j], live[j+1:]...)
		}
	}
}

func TestPool_RoundTripReuse(t *testing.T) {
	p := newWidgetPool(t, 8)
	const k = 5

	var first []SlotID
	batch := make([]*widget, 0, k)
	for i := 0; i < k; i++ {
		w, ok := p.Allocate(stamp(&first))
		require.True(t, ok)
		batch = append(batch, w)
	}
	for i := k - 1; i >= 0; i-- {
		require.NoError(t, p.Deallocate(batch[i]))
	}

	var second []SlotID
	for i := 0; i < k; i++ {
		_, ok := p.Allocate(stamp(&second))
		require.True(t, ok)
	}

	assert.ElementsMatch(t, first, second)
	assert.Equal(t, first, second, "reverse-order free restores allocation order")
}

func TestPool_LIFOReuse(t *testing.T) {
	p := newWidgetPool(t, 4)
	var ids []SlotID
	var live []*widget
	for i := 0; i < 4; i++ {
		w, _ := p.Allocate(stamp(&ids))
		live = append(live, w)
	}

	require.NoError(t, p.Deallocate(live[1]))
	require.NoError(t, p.Deallocate(live[3]))

	ids = ids[:0]
	_, _ = p.Allocate(stamp(&ids))
	_, _ = p.Allocate(stamp(&ids))
	assert.Equal(t, []SlotID{3, 1}, ids)
}

func TestPool_DeallocateNil(t *testing.T) {
	p := newWidgetPool(t, 2)
	_, ok := p.Allocate(nil)
	require.True(t, ok)

	assert.NotPanics(t, func() {
		assert.NoError(t, p.Deallocate(nil))
	})
	assert.Equal(t, uint32(1), p.UsedCount())
	assert.Zero(t, p.Stats().Violations)

	var empty Pool[widget]
	assert.NoError(t, empty.Deallocate(nil))
}

func TestPool_ForeignValue(t *testing.T) {
	p := newWidgetPool(t, 2)
	other := newWidgetPool(t, 2)

	stranger := &widget{}
	err := p.Deallocate(stranger)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrForeignValue)
	assert.True(t, errors.IsType(err, errors.ErrorTypeOwnership))

	theirs, ok := other.Allocate(nil)
	require.True(t, ok)
	assert.ErrorIs(t, p.Deallocate(theirs), ErrForeignValue)

	assert.Equal(t, uint32(1), other.UsedCount())
	assert.Equal(t, uint64(2), p.Stats().Violations)
	assert.NoError(t, p.Validate())
}

func TestPool_InteriorPointerIsForeign(t *testing.T) {
	type pair struct {
		a, b int64
	}
	p, err := NewWithCapacity[pair](2)
	require.NoError(t, err)
	defer p.Term()

	v, ok := p.Allocate(nil)
	require.True(t, ok)

	// &v.b lies inside the arena but is not the address of a slot value
	interior := (*pair)(unsafe.Pointer(&v.b))
	assert.ErrorIs(t, p.Deallocate(interior), ErrForeignValue)
	assert.Equal(t, uint32(1), p.UsedCount())

	id, ok := p.SlotOf(v)
	require.True(t, ok)
	assert.Equal(t, SlotID(0), id)
}

func TestPool_DoubleFree(t *testing.T) {
	p := newWidgetPool(t, 3)
	a, _ := p.Allocate(nil)
	b, _ := p.Allocate(nil)

	require.NoError(t, p.Deallocate(a))
	err := p.Deallocate(a)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDoubleFree)

	var perr *errors.Error
	require.True(t, errors.As(err, &perr))
	slotID, ok := perr.Detail("slot")
	require.True(t, ok)
	assert.Equal(t, SlotID(0), slotID)

	assert.Equal(t, uint32(1), p.UsedCount())
	require.NoError(t, p.Validate())
	require.NoError(t, p.Deallocate(b))
	assert.Zero(t, p.UsedCount())
}

func TestPool_DeallocateUninitialized(t *testing.T) {
	p := New[widget]()
	err := p.Deallocate(&widget{})
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.True(t, errors.IsType(err, errors.ErrorTypeState))
}

func TestPool_FreedSlotIsZeroed(t *testing.T) {
	p := newWidgetPool(t, 1)
	w, _ := p.Allocate(func(id SlotID, w *widget) {
		w.name = "first"
		w.refs = []int{1, 2, 3}
	})
	require.NoError(t, p.Deallocate(w))
	assert.Empty(t, w.name)
	assert.Nil(t, w.refs)

	again, _ := p.Allocate(nil)
	assert.Same(t, w, again)
	assert.Equal(t, widget{}, *again)
}

func TestPool_InitHookPanicRollsBack(t *testing.T) {
	p := newWidgetPool(t, 2)

	assert.Panics(t, func() {
		p.Allocate(func(SlotID, *widget) { panic("boom") })
	})
	assert.Zero(t, p.UsedCount())
	require.NoError(t, p.Validate())

	var ids []SlotID
	_, ok := p.Allocate(stamp(&ids))
	require.True(t, ok)
	assert.Equal(t, []SlotID{0}, ids)
	assert.Equal(t, uint64(1), p.Stats().Allocations)
}

func TestPool_MustAllocate(t *testing.T) {
	p := newWidgetPool(t, 1)
	assert.NotNil(t, p.MustAllocate(nil))

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.ErrorIs(t, err, ErrExhausted)
	}()
	p.MustAllocate(nil)
}

func TestPool_InitErrors(t *testing.T) {
	t.Run("zero capacity", func(t *testing.T) {
		p := New[widget]()
		err := p.Init(0)
		assert.ErrorIs(t, err, ErrInvalidCapacity)
		assert.Zero(t, p.Size())
	})

	t.Run("above max", func(t *testing.T) {
		p := New[widget]()
		assert.ErrorIs(t, p.Init(MaxCapacity+1), ErrInvalidCapacity)
	})

	t.Run("already initialized", func(t *testing.T) {
		p := newWidgetPool(t, 4)
		w, _ := p.Allocate(nil)

		err := p.Init(8)
		assert.ErrorIs(t, err, ErrAlreadyInitialized)
		assert.Equal(t, uint32(4), p.Size())
		assert.Equal(t, uint32(1), p.UsedCount())
		assert.NoError(t, p.Deallocate(w))
	})

	t.Run("reservation over limit then retry", func(t *testing.T) {
		limit, ok := arenaBytes[widget](4)
		require.True(t, ok)
		p := New[widget](WithArenaLimit(limit))

		err := p.Init(5)
		assert.ErrorIs(t, err, ErrReservation)
		assert.True(t, errors.IsType(err, errors.ErrorTypeResource))
		assert.Zero(t, p.Size())
		assert.NoError(t, p.Validate())

		_, ok = p.Allocate(nil)
		assert.False(t, ok)

		require.NoError(t, p.Init(4))
		assert.Equal(t, uint32(4), p.Size())
		p.Term()
	})

	t.Run("max capacity rejected by limit", func(t *testing.T) {
		p := New[widget](WithArenaLimit(1 << 20))
		assert.ErrorIs(t, p.Init(MaxCapacity), ErrReservation)
	})
}

func TestPool_TermResetsState(t *testing.T) {
	p := New[widget](WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, p.Init(3))
	for i := 0; i < 3; i++ {
		_, ok := p.Allocate(nil)
		require.True(t, ok)
	}
	_, _ = p.Allocate(nil)

	p.Term()
	assert.Zero(t, p.Size())
	assert.Zero(t, p.UsedCount())
	assert.Zero(t, p.AvailableCount())
	assert.Equal(t, Stats{}, p.Stats())
	assert.NoError(t, p.Validate())

	_, ok := p.Allocate(nil)
	assert.False(t, ok)

	require.NoError(t, p.Init(5))
	defer p.Term()
	var ids []SlotID
	for i := 0; i < 5; i++ {
		_, ok := p.Allocate(stamp(&ids))
		require.True(t, ok)
	}
	assert.Equal(t, []SlotID{0, 1, 2, 3, 4}, ids)
	assert.Equal(t, uint64(5), p.Stats().Allocations)
	assert.NoError(t, p.Validate())
}

func TestPool_TermIdempotent(t *testing.T) {
	var zero Pool[widget]
	assert.NotPanics(t, zero.Term)
	assert.NotPanics(t, zero.Term)

	p := newWidgetPool(t, 2)
	p.Term()
	assert.NotPanics(t, p.Term)
}

func TestPool_ZeroValueUsable(t *testing.T) {
	var p Pool[int]
	assert.Equal(t, "pool", p.Name())
	require.NoError(t, p.Init(2))
	defer p.Term()

	v, ok := p.Allocate(func(id SlotID, v *int) { *v = int(id) + 10 })
	require.True(t, ok)
	assert.Equal(t, 10, *v)
}

func TestPool_ReleaseHook(t *testing.T) {
	var released []SlotID
	hook := func(id SlotID, w *widget) {
		released = append(released, id)
		assert.Equal(t, id, w.id, "hook sees the value before it is zeroed")
	}
	p := newWidgetPool(t, 4, WithReleaseHook(hook))

	var ids []SlotID
	var live []*widget
	for i := 0; i < 4; i++ {
		w, _ := p.Allocate(stamp(&ids))
		live = append(live, w)
	}

	require.NoError(t, p.Deallocate(live[1]))
	assert.Equal(t, []SlotID{1}, released)

	p.Term()
	assert.Equal(t, []SlotID{1, 0, 2, 3}, released, "term releases live values in allocation order")
}

func TestPool_ReleaseHookTypeMismatch(t *testing.T) {
	assert.Panics(t, func() {
		New[int](WithReleaseHook(func(SlotID, *widget) {}))
	})
}

func TestPool_TermWithPanickingHookStillTearsDown(t *testing.T) {
	p := New[widget](WithReleaseHook(func(SlotID, *widget) { panic("cleanup failed") }))
	require.NoError(t, p.Init(2))
	_, _ = p.Allocate(nil)

	assert.Panics(t, p.Term)
	assert.Zero(t, p.Size())
	assert.NoError(t, p.Validate())
	require.NoError(t, p.Init(2))
	p.Term()
}

func TestPool_AtAndRange(t *testing.T) {
	p := newWidgetPool(t, 5)
	var ids []SlotID
	var live []*widget
	for i := 0; i < 4; i++ {
		w, _ := p.Allocate(stamp(&ids))
		live = append(live, w)
	}
	require.NoError(t, p.Deallocate(live[0]))

	v, ok := p.At(2)
	require.True(t, ok)
	assert.Same(t, live[2], v)

	_, ok = p.At(0)
	assert.False(t, ok, "freed slot")
	_, ok = p.At(4)
	assert.False(t, ok, "never allocated")
	_, ok = p.At(ActiveSentinel)
	assert.False(t, ok)

	var order []SlotID
	p.Range(func(id SlotID, w *widget) bool {
		assert.Equal(t, id, w.id)
		order = append(order, id)
		return true
	})
	assert.Equal(t, []SlotID{1, 2, 3}, order)

	order = order[:0]
	p.Range(func(id SlotID, _ *widget) bool {
		order = append(order, id)
		return len(order) < 2
	})
	assert.Equal(t, []SlotID{1, 2}, order)

	_, ok = p.SlotOf(live[0])
	assert.False(t, ok)
	_, ok = p.SlotOf(nil)
	assert.False(t, ok)
}

func TestPool_QueriesOnEmptyPool(t *testing.T) {
	p := New[widget]()
	assert.Zero(t, p.Size())
	assert.Zero(t, p.UsedCount())
	assert.Zero(t, p.AvailableCount())
	_, ok := p.Allocate(nil)
	assert.False(t, ok)
	_, ok = p.At(0)
	assert.False(t, ok)
}

func TestSlotID_IsSentinel(t *testing.T) {
	assert.True(t, ActiveSentinel.IsSentinel())
	assert.True(t, FreeSentinel.IsSentinel())
	assert.False(t, SlotID(0).IsSentinel())
	assert.False(t, SlotID(MaxCapacity-1).IsSentinel())
}
