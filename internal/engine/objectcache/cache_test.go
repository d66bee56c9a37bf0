package objectcache_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kbridge/internal/core/domain"
	"go.trai.ch/kbridge/internal/core/ports"
	"go.trai.ch/kbridge/internal/core/ports/mocks"
	"go.trai.ch/kbridge/internal/engine/canonical"
	"go.trai.ch/kbridge/internal/engine/objectcache"
	"go.uber.org/mock/gomock"
)

const testKind = "test-solid"

type solid struct {
	name         string
	dead         bool
	disposed     int
	disposeErr   error
	disposePanic bool
}

func (s *solid) IsLive() bool { return !s.dead }

func (s *solid) Dispose() error {
	if s.disposePanic {
		panic("dispose exploded")
	}
	if s.dead {
		return domain.ErrAlreadyDisposed
	}
	s.dead = true
	s.disposed++
	return s.disposeErr
}

type backend struct{}

func (backend) Kind() string { return testKind }

func (backend) Handle(v any) (ports.NativeHandle, bool) {
	s, ok := v.(*solid)
	if !ok || s == nil {
		return nil, false
	}
	return s, true
}

func newCache(opts ...objectcache.Option) *objectcache.Cache {
	return objectcache.New(canonical.NewHasher("ptr"), backend{}, opts...)
}

func args(name string, inputs map[string]any) domain.CallArguments {
	return domain.CallArguments{FunctionName: name, Inputs: inputs}
}

// counting returns a compute function that yields results in order and counts invocations.
func counting(calls *int, results ...any) objectcache.ComputeFunc {
	return func() (any, error) {
		r := results[*calls%len(results)]
		*calls++
		return r, nil
	}
}

func keyOf(t *testing.T, c *objectcache.Cache, a domain.CallArguments) domain.CacheKey {
	t.Helper()
	key, err := c.ComputeHash(a)
	require.NoError(t, err)
	return key
}

func TestCache_CacheOp_IdempotentHit(t *testing.T) {
	c := newCache()
	h := &solid{name: "sphere"}
	calls := 0

	first, err := c.CacheOp(args("shapes.sphere", map[string]any{"radius": 5, "ptr": 100}), counting(&calls, h))
	require.NoError(t, err)
	second, err := c.CacheOp(args("shapes.sphere", map[string]any{"ptr": 200, "radius": 5.0}), counting(&calls, h))
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.False(t, first.Hit)
	assert.True(t, second.Hit)
	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, domain.HandleReference{Hash: first.Key, Kind: testKind}, first.Value)
	assert.Equal(t, first.Value, second.Value)

	entry, err := c.CheckCache(first.Key)
	require.NoError(t, err)
	assert.Same(t, h, entry.Payload)
	assert.Equal(t, objectcache.EntryNativeHandle, entry.Kind)
}

func TestCache_CacheOp_DistinctArgs(t *testing.T) {
	c := newCache()
	calls := 0

	a, err := c.CacheOp(args("shapes.sphere", map[string]any{"r": 5}), counting(&calls, &solid{}))
	require.NoError(t, err)
	b, err := c.CacheOp(args("shapes.sphere", map[string]any{"r": 10}), counting(&calls, &solid{}))
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.NotEqual(t, a.Key, b.Key)
	assert.Equal(t, 2, c.Len())
}

func TestCache_CacheOp_PlainValue(t *testing.T) {
	c := newCache()
	calls := 0
	volume := map[string]any{"volume": 42.0}

	first, err := c.CacheOp(args("measure.volume", nil), counting(&calls, volume))
	require.NoError(t, err)
	second, err := c.CacheOp(args("measure.volume", nil), counting(&calls, volume))
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, volume, first.Value)
	assert.Equal(t, volume, second.Value)

	entry, err := c.CheckCache(first.Key)
	require.NoError(t, err)
	assert.Equal(t, objectcache.EntryPlainValue, entry.Kind)
}

func TestCache_CacheOp_ComputeErrorIsNotCached(t *testing.T) {
	c := newCache()
	boom := errors.New("kernel exploded")
	calls := 0
	compute := func() (any, error) {
		calls++
		return nil, boom
	}

	_, err := c.CacheOp(args("debug.fail", nil), compute)
	require.ErrorIs(t, err, boom)
	_, err = c.CacheOp(args("debug.fail", nil), compute)
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, c.Len())
}

func TestCache_CacheOp_UnhashableArgs(t *testing.T) {
	c := newCache()

	_, err := c.CacheOp(args("f", map[string]any{"v": func() {}}), func() (any, error) {
		t.Fatal("compute must not run")
		return nil, nil
	})
	require.ErrorIs(t, err, domain.ErrUnhashableValue)
}

func TestCache_CacheOp_DeadHandleIsRecomputed(t *testing.T) {
	c := newCache()
	first, second := &solid{name: "a"}, &solid{name: "b"}
	calls := 0
	a := args("shapes.box", map[string]any{"w": 1})

	_, err := c.CacheOp(a, counting(&calls, first, second))
	require.NoError(t, err)
	first.dead = true

	res, err := c.CacheOp(a, counting(&calls, first, second))
	require.NoError(t, err)

	assert.False(t, res.Hit)
	assert.Equal(t, 2, calls)
	entry, err := c.CheckCache(res.Key)
	require.NoError(t, err)
	assert.Same(t, second, entry.Payload)
}

func TestCache_CacheOp_ArrayFanOut(t *testing.T) {
	c := newCache()
	h1, h2 := &solid{name: "h1"}, &solid{name: "h2"}
	calls := 0
	a := args("patterns.array", map[string]any{"count": 2})

	res, err := c.CacheOp(a, counting(&calls, []*solid{h1, h2}))
	require.NoError(t, err)

	k1 := keyOf(t, c, a.WithIndex(0))
	k2 := keyOf(t, c, a.WithIndex(1))
	require.NotEqual(t, k1, k2)
	assert.Equal(t, []any{
		domain.HandleReference{Hash: k1, Kind: testKind},
		domain.HandleReference{Hash: k2, Kind: testKind},
	}, res.Value)

	e1, err := c.CheckCache(k1)
	require.NoError(t, err)
	assert.Same(t, h1, e1.Payload)
	e2, err := c.CheckCache(k2)
	require.NoError(t, err)
	assert.Same(t, h2, e2.Payload)

	// Elements are independently disposable.
	assert.True(t, c.Evict(k1))
	assert.Equal(t, 1, h1.disposed)
	assert.True(t, h2.IsLive())
	_, err = c.CheckCache(k1)
	require.ErrorIs(t, err, domain.ErrCacheMiss)
	_, err = c.CheckCache(k2)
	require.NoError(t, err)
}

func TestCache_CacheOp_ArrayFanOutHitAndRepair(t *testing.T) {
	c := newCache()
	h1, h2 := &solid{name: "h1"}, &solid{name: "h2"}
	n1, n2 := &solid{name: "n1"}, &solid{name: "n2"}
	calls := 0
	a := args("patterns.array", map[string]any{"count": 2})
	compute := counting(&calls, []any{h1, h2}, []any{n1, n2})

	first, err := c.CacheOp(a, compute)
	require.NoError(t, err)
	hit, err := c.CacheOp(a, compute)
	require.NoError(t, err)
	assert.True(t, hit.Hit)
	assert.Equal(t, first.Value, hit.Value)
	assert.Equal(t, 1, calls)

	// Losing one element invalidates the sequence; the survivor is replaced and released.
	c.Evict(keyOf(t, c, a.WithIndex(0)))
	again, err := c.CacheOp(a, compute)
	require.NoError(t, err)

	assert.False(t, again.Hit)
	assert.Equal(t, 2, calls)
	assert.Equal(t, first.Value, again.Value)
	assert.Equal(t, 1, h2.disposed)
	e2, err := c.CheckCache(keyOf(t, c, a.WithIndex(1)))
	require.NoError(t, err)
	assert.Same(t, n2, e2.Payload)
}

func TestCache_CacheOp_MixedSequenceKeepsPlainElements(t *testing.T) {
	c := newCache()
	h := &solid{}
	calls := 0
	a := args("patterns.mixed", nil)

	res, err := c.CacheOp(a, counting(&calls, []any{h, 3.5}))
	require.NoError(t, err)

	assert.Equal(t, []any{domain.HandleReference{Hash: keyOf(t, c, a.WithIndex(0)), Kind: testKind}, 3.5}, res.Value)
	assert.Equal(t, 2, c.Len())
}

func TestCache_CacheOp_Assembly(t *testing.T) {
	c := newCache()
	agg, wheel, axle := &solid{name: "agg"}, &solid{name: "wheel"}, &solid{name: "axle"}
	calls := 0
	a := args("assembly.group", map[string]any{"name": "cart"})

	res, err := c.CacheOp(a, counting(&calls, &domain.Assembly{
		Aggregate: agg,
		Members:   []domain.Member{{Name: "wheel", Handle: wheel}, {Name: "axle", Handle: axle}},
		Data:      map[string]any{"count": 2},
	}))
	require.NoError(t, err)

	aggKey := keyOf(t, c, a.WithIndex(objectcache.AggregateIndex))
	wheelKey := keyOf(t, c, a.WithIndex(0))
	axleKey := keyOf(t, c, a.WithIndex(1))
	assert.Equal(t, domain.AssemblyRef{
		Aggregate: domain.HandleReference{Hash: aggKey, Kind: testKind},
		Members: []domain.MemberRef{
			{Name: "wheel", Ref: domain.HandleReference{Hash: wheelKey, Kind: testKind}},
			{Name: "axle", Ref: domain.HandleReference{Hash: axleKey, Kind: testKind}},
		},
		Data: map[string]any{"count": 2},
	}, res.Value)
	assert.Equal(t, 4, c.Len())

	base, err := c.CheckCache(res.Key)
	require.NoError(t, err)
	assert.Equal(t, objectcache.EntryPlainValue, base.Kind)
	assert.ElementsMatch(t, []domain.CacheKey{aggKey, wheelKey, axleKey}, base.Children)

	hit, err := c.CacheOp(a, counting(&calls, nil))
	require.NoError(t, err)
	assert.True(t, hit.Hit)
	assert.Equal(t, 1, calls)
}

func TestCache_CacheOp_AssemblyWithPlainMemberFails(t *testing.T) {
	c := newCache()
	agg := &solid{}
	calls := 0

	_, err := c.CacheOp(args("assembly.group", nil), counting(&calls, domain.Assembly{
		Aggregate: agg,
		Members:   []domain.Member{{Name: "label", Handle: "not a handle"}},
	}))

	require.ErrorIs(t, err, domain.ErrKernelFailure)
	assert.Equal(t, 1, agg.disposed)
	assert.Equal(t, 0, c.Len())
}

func TestCache_Sweep_Generational(t *testing.T) {
	c := newCache()
	h1, h2 := &solid{name: "k1"}, &solid{name: "k2"}
	a1 := args("shapes.sphere", map[string]any{"r": 1})
	a2 := args("shapes.sphere", map[string]any{"r": 2})
	calls := 0

	// Round A uses K1 and K2.
	_, err := c.CacheOp(a1, counting(&calls, h1))
	require.NoError(t, err)
	_, err = c.CacheOp(a2, counting(&calls, h2))
	require.NoError(t, err)
	assert.Equal(t, 0, c.Sweep())

	// Round B uses only K1.
	_, err = c.CacheOp(a1, counting(&calls, h1))
	require.NoError(t, err)
	assert.Equal(t, 1, c.Sweep())

	_, err = c.CheckCache(keyOf(t, c, a1))
	require.NoError(t, err)
	_, err = c.CheckCache(keyOf(t, c, a2))
	require.ErrorIs(t, err, domain.ErrCacheMiss)
	assert.Equal(t, 0, h1.disposed)
	assert.Equal(t, 1, h2.disposed)
}

func TestCache_Sweep_KeepsEntriesOfRoundInProgress(t *testing.T) {
	c := newCache()
	h := &solid{}
	calls := 0

	_, err := c.CacheOp(args("shapes.box", nil), counting(&calls, h))
	require.NoError(t, err)

	assert.Equal(t, 0, c.Sweep())
	assert.True(t, h.IsLive())
	assert.Equal(t, 1, c.Len())

	// Unused across the next round, so the following sweep releases it.
	assert.Equal(t, 1, c.Sweep())
	assert.False(t, h.IsLive())
}

func TestCache_Sweep_ChildrenFollowTheirSequence(t *testing.T) {
	c := newCache()
	h1, h2 := &solid{}, &solid{}
	a := args("patterns.array", nil)
	calls := 0

	_, err := c.CacheOp(a, counting(&calls, []any{h1, h2}))
	require.NoError(t, err)
	c.Sweep()

	// A hit in the next round keeps the elements alive.
	_, err = c.CacheOp(a, counting(&calls, []any{h1, h2}))
	require.NoError(t, err)
	c.Sweep()

	assert.Equal(t, 1, calls)
	assert.True(t, h1.IsLive())
	assert.True(t, h2.IsLive())
	assert.Equal(t, 3, c.Len())
}

func TestCache_DisposalSafety(t *testing.T) {
	newTroubled := func() []*solid {
		return []*solid{
			{name: "already dead", dead: true},
			{name: "errors", disposeErr: errors.New("kernel refused")},
			{name: "panics", disposePanic: true},
		}
	}

	fill := func(c *objectcache.Cache, handles []*solid) {
		for i, h := range handles {
			calls := 0
			_, err := c.CacheOp(args("shapes.box", map[string]any{"i": i}), counting(&calls, h))
			require.NoError(t, err)
		}
	}

	t.Run("flush", func(t *testing.T) {
		c := newCache()
		fill(c, newTroubled())

		assert.NotPanics(t, func() { c.Flush() })
		assert.Equal(t, 0, c.Len())
	})

	t.Run("sweep", func(t *testing.T) {
		c := newCache()
		fill(c, newTroubled())

		assert.NotPanics(t, func() {
			c.Sweep()
			c.Sweep()
		})
		assert.Equal(t, 0, c.Len())
	})

	t.Run("evict", func(t *testing.T) {
		c := newCache()
		handles := newTroubled()
		fill(c, handles[2:])

		assert.NotPanics(t, func() {
			assert.True(t, c.Evict(keyOf(t, c, args("shapes.box", map[string]any{"i": 0}))))
		})
	})
}

func TestCache_DisposalFailureIsLogged(t *testing.T) {
	ctrl := gomock.NewController(t)
	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Debug("failed to dispose handle", gomock.Any()).Times(1)

	c := newCache(objectcache.WithLogger(logger))
	calls := 0
	res, err := c.CacheOp(args("shapes.box", nil), counting(&calls, &solid{disposeErr: errors.New("refused")}))
	require.NoError(t, err)

	assert.True(t, c.Evict(res.Key))
	assert.False(t, c.Evict(res.Key))
}

func TestCache_CheckCache_PurgesDeadHandle(t *testing.T) {
	c := newCache()
	h := &solid{}
	calls := 0

	res, err := c.CacheOp(args("shapes.box", nil), counting(&calls, h))
	require.NoError(t, err)
	h.dead = true

	_, err = c.CheckCache(res.Key)
	require.ErrorIs(t, err, domain.ErrCacheMiss)
	assert.Equal(t, 0, c.Len())
}

func TestCache_Flush(t *testing.T) {
	c := newCache()
	h1, h2 := &solid{}, &solid{}
	calls := 0

	_, err := c.CacheOp(args("a", nil), counting(&calls, h1))
	require.NoError(t, err)
	_, err = c.CacheOp(args("b", nil), counting(&calls, []any{h2}))
	require.NoError(t, err)
	_, err = c.CacheOp(args("c", nil), counting(&calls, 7))
	require.NoError(t, err)

	assert.Equal(t, 4, c.Flush())
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 1, h1.disposed)
	assert.Equal(t, 1, h2.disposed)

	// Tracking sets are reset too, so the next sweep has nothing to evict.
	assert.Equal(t, 0, c.Sweep())
}

func TestCache_Stats(t *testing.T) {
	c := newCache()
	calls := 0

	_, err := c.CacheOp(args("a", nil), counting(&calls, &solid{}))
	require.NoError(t, err)
	_, err = c.CacheOp(args("a", nil), counting(&calls, &solid{}))
	require.NoError(t, err)
	_, err = c.CacheOp(args("b", nil), counting(&calls, "plain"))
	require.NoError(t, err)
	c.Evict(keyOf(t, c, args("b", nil)))

	assert.Equal(t, objectcache.Stats{
		Entries:   1,
		Handles:   1,
		Hits:      1,
		Misses:    2,
		Evictions: 1,
	}, c.Stats())

	c.Flush()
	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Flushes)
	assert.Equal(t, 0, stats.Entries)
}

func TestCache_Journal(t *testing.T) {
	a := args("shapes.sphere", map[string]any{"r": 5})

	t.Run("records missed keys", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		journal := mocks.NewMockKeyJournal(ctrl)
		c := newCache(objectcache.WithJournal(journal))
		key, form, err := c.Describe(a)
		require.NoError(t, err)

		journal.EXPECT().Get(key).Return(nil, nil)
		journal.EXPECT().Put(gomock.Any()).DoAndReturn(func(rec domain.KeyRecord) error {
			assert.Equal(t, key, rec.Key)
			assert.Equal(t, "shapes.sphere", rec.Function)
			assert.Equal(t, form, rec.Canonical)
			assert.False(t, rec.FirstSeen.IsZero())
			return nil
		})

		calls := 0
		_, err = c.CacheOp(a, counting(&calls, &solid{}))
		require.NoError(t, err)

		// Hits never touch the journal.
		_, err = c.CacheOp(a, counting(&calls, &solid{}))
		require.NoError(t, err)
	})

	t.Run("reports collisions", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		journal := mocks.NewMockKeyJournal(ctrl)
		logger := mocks.NewMockLogger(ctrl)
		c := newCache(objectcache.WithJournal(journal), objectcache.WithLogger(logger))
		key, err := c.ComputeHash(a)
		require.NoError(t, err)

		journal.EXPECT().Get(key).Return(&domain.KeyRecord{Key: key, Canonical: `{"other":true}`}, nil)
		logger.EXPECT().Error(gomock.Any()).Do(func(err error) {
			assert.ErrorIs(t, err, domain.ErrKeyCollision)
		})

		calls := 0
		_, err = c.CacheOp(a, counting(&calls, &solid{}))
		require.NoError(t, err)
	})
}

func TestCache_Discard(t *testing.T) {
	c := newCache()
	h1, h2 := &solid{name: "h1"}, &solid{name: "h2"}
	calls := 0
	a := args("patterns.array", map[string]any{"count": 2})

	res, err := c.CacheOp(a, counting(&calls, []any{h1, h2}))
	require.NoError(t, err)
	require.Equal(t, 3, c.Len())

	assert.Equal(t, 3, c.Discard(res.Key))
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 1, h1.disposed)
	assert.Equal(t, 1, h2.disposed)
	assert.Equal(t, uint64(3), c.Stats().Evictions)

	assert.Equal(t, 0, c.Discard(res.Key))
}

// sheet is a handle held by value whose type cannot be compared with ==.
type sheet struct {
	faces []int
	dead  *bool
}

func (s sheet) IsLive() bool { return !*s.dead }

func (s sheet) Dispose() error {
	*s.dead = true
	return nil
}

type sheetBackend struct{}

func (sheetBackend) Kind() string { return "test-sheet" }

func (sheetBackend) Handle(v any) (ports.NativeHandle, bool) {
	s, ok := v.(sheet)
	return s, ok
}

func newSheet() sheet {
	return sheet{faces: []int{1, 2, 3}, dead: new(bool)}
}

func TestCache_CacheOp_UncomparableHandles(t *testing.T) {
	c := objectcache.New(canonical.NewHasher(), sheetBackend{})
	first, second, replacement := newSheet(), newSheet(), newSheet()
	calls := 0
	a := args("patterns.array", map[string]any{"count": 2})
	compute := counting(&calls, []any{first, second}, []any{replacement, second})

	_, err := c.CacheOp(a, compute)
	require.NoError(t, err)

	// Repairing the sequence stores the surviving element again under its own key.
	c.Evict(keyOf(t, c, a.WithIndex(0)))
	assert.NotPanics(t, func() {
		_, err = c.CacheOp(a, compute)
	})
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.True(t, second.IsLive())
	assert.True(t, replacement.IsLive())

	hit, err := c.CacheOp(a, compute)
	require.NoError(t, err)
	assert.True(t, hit.Hit)
}
