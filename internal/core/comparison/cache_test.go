package comparison

import (
	"context"
	"errors"
	"sync"
	"testing"

	"meal-planner/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	rows    map[Pair]Entry
	reads   int
	failPut bool
	failGet bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[Pair]Entry)}
}

func (s *fakeStore) GetComparisons(_ context.Context, pairs []Pair) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.failGet {
		return nil, errors.New("connection refused")
	}
	var out []Entry
	for _, p := range pairs {
		if e, ok := s.rows[p]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) GetComparisonsFor(_ context.Context, name string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	var out []Entry
	for p, e := range s.rows {
		if p.A == name || p.B == name {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) GetComparisonsAmong(_ context.Context, names []string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.failGet {
		return nil, errors.New("connection refused")
	}
	in := make(map[string]bool, len(names))
	for _, n := range names {
		in[n] = true
	}
	var out []Entry
	for p, e := range s.rows {
		if in[p.A] && in[p.B] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertComparison(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut {
		return errors.New("disk full")
	}
	s.rows[e.Pair] = e
	return nil
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "brown sugar", Normalize("  Brown   Sugar "))
	assert.Equal(t, "jalapeño", Normalize("Jalapeño"))
	assert.Equal(t, "", Normalize("   "))
}

func TestNewPairIsOrderIndependent(t *testing.T) {
	p1 := NewPair("Honey", "brown sugar")
	p2 := NewPair("Brown Sugar ", "honey")
	assert.Equal(t, p1, p2)
	assert.Equal(t, "brown sugar", p1.A)
	assert.Equal(t, "honey", p1.B)
	assert.Equal(t, "honey", p1.Other("Brown Sugar"))
	assert.True(t, p1.Has("HONEY"))
	assert.False(t, p1.Identical())
}

func TestNewEntryOrientsRatios(t *testing.T) {
	e := NewEntry("lemon", "lemon juice", Verdict{
		Status:        common.StatusSame,
		CanonicalUnit: "cup",
		RatioA:        Float(0.25),
		RatioB:        Float(1),
	})
	assert.Equal(t, Pair{A: "lemon", B: "lemon juice"}, e.Pair)

	swapped := NewEntry("lemon juice", "lemon", Verdict{
		Status:        common.StatusSame,
		CanonicalUnit: "cup",
		RatioA:        Float(1),
		RatioB:        Float(0.25),
	})
	assert.Equal(t, e.Pair, swapped.Pair)

	r, ok := swapped.RatioFor("Lemon")
	require.True(t, ok)
	assert.Equal(t, 0.25, r)
	r, ok = swapped.RatioFor("lemon juice")
	require.True(t, ok)
	assert.Equal(t, 1.0, r)
	assert.True(t, swapped.HasConversion())
}

func TestCacheGetIsSymmetric(t *testing.T) {
	common.InitNopLogger()
	ctx := context.Background()
	c := NewCache(newFakeStore(), 10, nil)

	require.NoError(t, c.Put(ctx, "Honey", "brown sugar", Verdict{Status: common.StatusSimilar}))

	ab, ok, err := c.Get(ctx, "honey", "Brown Sugar")
	require.NoError(t, err)
	require.True(t, ok)
	ba, ok, err := c.Get(ctx, "brown sugar", "HONEY")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, ab, ba)
	assert.Equal(t, common.StatusSimilar, ab.Status)

	_, ok, err = c.Get(ctx, "honey", "salt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCachePutIsIdempotent(t *testing.T) {
	common.InitNopLogger()
	ctx := context.Background()
	store := newFakeStore()
	c := NewCache(store, 10, nil)

	v := Verdict{Status: common.StatusSame, CanonicalUnit: "oz", RatioA: Float(1), RatioB: Float(16)}
	require.NoError(t, c.Put(ctx, "salmon", "salmon fillet", v))
	first := store.rows[NewPair("salmon", "salmon fillet")]
	require.NoError(t, c.Put(ctx, "salmon", "salmon fillet", v))
	second := store.rows[NewPair("salmon", "salmon fillet")]

	assert.Len(t, store.rows, 1)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.CanonicalUnit, second.CanonicalUnit)
	assert.Equal(t, *first.Ratio1, *second.Ratio1)
	assert.Equal(t, *first.Ratio2, *second.Ratio2)
}

func TestCachePutRejectsUnknownStatus(t *testing.T) {
	c := NewCache(newFakeStore(), 10, nil)
	err := c.Put(context.Background(), "a", "b", Verdict{Status: "maybe"})
	assert.Error(t, err)
}

func TestCachePutPropagatesStoreFailure(t *testing.T) {
	common.InitNopLogger()
	store := newFakeStore()
	store.failPut = true
	c := NewCache(store, 10, nil)

	err := c.Put(context.Background(), "a", "b", Verdict{Status: common.StatusSame})
	require.Error(t, err)

	_, ok, err := c.Get(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheLocalTierServesRepeatReads(t *testing.T) {
	common.InitNopLogger()
	ctx := context.Background()
	store := newFakeStore()
	store.rows[NewPair("milk", "whole milk")] = NewEntry("milk", "whole milk", Verdict{Status: common.StatusSame})
	c := NewCache(store, 10, nil)

	_, ok, err := c.Get(ctx, "milk", "whole milk")
	require.NoError(t, err)
	require.True(t, ok)
	reads := store.reads

	_, ok, err = c.Get(ctx, "whole milk", "milk")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, reads, store.reads)

	stats := c.GetStats()
	assert.Equal(t, int64(1), stats["hits"])
}

func TestCacheBatchGet(t *testing.T) {
	common.InitNopLogger()
	ctx := context.Background()
	c := NewCache(newFakeStore(), 10, nil)
	require.NoError(t, c.Put(ctx, "a", "b", Verdict{Status: common.StatusSame}))
	require.NoError(t, c.Put(ctx, "c", "d", Verdict{Status: common.StatusDifferent}))

	got, err := c.BatchGet(ctx, []Pair{NewPair("b", "a"), NewPair("d", "c"), NewPair("a", "d"), NewPair("a", "b")})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, common.StatusSame, got[NewPair("a", "b")].Status)
	assert.Equal(t, common.StatusDifferent, got[NewPair("c", "d")].Status)
}

func TestCacheGetAllFor(t *testing.T) {
	common.InitNopLogger()
	ctx := context.Background()
	c := NewCache(newFakeStore(), 10, nil)
	require.NoError(t, c.Put(ctx, "onion", "red onion", Verdict{Status: common.StatusSimilar}))
	require.NoError(t, c.Put(ctx, "yellow onion", "onion", Verdict{Status: common.StatusSame}))
	require.NoError(t, c.Put(ctx, "garlic", "shallot", Verdict{Status: common.StatusDifferent}))

	neighbors, err := c.GetAllFor(ctx, " Onion")
	require.NoError(t, err)
	assert.Len(t, neighbors, 2)
	assert.Equal(t, common.StatusSimilar, neighbors["red onion"].Status)
	assert.Equal(t, common.StatusSame, neighbors["yellow onion"].Status)

	among, err := c.GetAllForNames(ctx, []string{"onion", "red onion", "garlic", "Onion"})
	require.NoError(t, err)
	assert.Len(t, among, 2)
	assert.Equal(t, common.StatusSimilar, among["onion"]["red onion"].Status)
	assert.Equal(t, common.StatusSimilar, among["red onion"]["onion"].Status)
	assert.NotContains(t, among["onion"], "yellow onion")
}

func TestCacheGetAllForNamesUsesWarmTier(t *testing.T) {
	common.InitNopLogger()
	ctx := context.Background()
	store := newFakeStore()
	c := NewCache(store, 10, nil)
	require.NoError(t, c.Put(ctx, "cod", "haddock", Verdict{Status: common.StatusSimilar}))
	require.NoError(t, c.Put(ctx, "haddock", "pollock", Verdict{Status: common.StatusSimilar}))
	require.NoError(t, c.Put(ctx, "cod", "pollock", Verdict{Status: common.StatusDifferent}))

	store.failGet = true
	reads := store.reads
	among, err := c.GetAllForNames(ctx, []string{"Cod", "haddock", "pollock"})
	require.NoError(t, err)
	assert.Equal(t, reads, store.reads)
	assert.Len(t, among["cod"], 2)
	assert.Equal(t, common.StatusDifferent, among["pollock"]["cod"].Status)

	_, err = c.GetAllForNames(ctx, []string{"cod", "halibut"})
	assert.Error(t, err)
}

func TestCacheGetAllForNamesFillsLocalTier(t *testing.T) {
	common.InitNopLogger()
	ctx := context.Background()
	store := newFakeStore()
	store.rows[NewPair("milk", "whole milk")] = NewEntry("milk", "whole milk", Verdict{Status: common.StatusSame})
	c := NewCache(store, 10, nil)

	among, err := c.GetAllForNames(ctx, []string{"milk", "whole milk"})
	require.NoError(t, err)
	assert.Equal(t, common.StatusSame, among["milk"]["whole milk"].Status)
	assert.Equal(t, 1, store.reads)

	store.failGet = true
	among, err = c.GetAllForNames(ctx, []string{"whole milk", "milk"})
	require.NoError(t, err)
	assert.Equal(t, common.StatusSame, among["whole milk"]["milk"].Status)
	assert.Equal(t, 1, store.reads)
}

func TestLocalTierEvictsLeastRecentlyUsed(t *testing.T) {
	common.InitNopLogger()
	lt := newLocalTier(2)
	a := NewEntry("a", "b", Verdict{Status: common.StatusSame})
	b := NewEntry("c", "d", Verdict{Status: common.StatusSame})
	c := NewEntry("e", "f", Verdict{Status: common.StatusSame})

	lt.set(a)
	lt.set(b)
	_, ok := lt.get(a.Pair)
	require.True(t, ok)
	lt.set(c)

	_, ok = lt.get(b.Pair)
	assert.False(t, ok)
	_, ok = lt.get(a.Pair)
	assert.True(t, ok)
	_, ok = lt.get(c.Pair)
	assert.True(t, ok)
}

func TestLocalTierRecencyBeatsFrequency(t *testing.T) {
	common.InitNopLogger()
	lt := newLocalTier(2)
	hot := NewEntry("flour", "sugar", Verdict{Status: common.StatusDifferent})
	recent := NewEntry("milk", "cream", Verdict{Status: common.StatusSimilar})

	lt.set(hot)
	for i := 0; i < 5; i++ {
		_, ok := lt.get(hot.Pair)
		require.True(t, ok)
	}
	lt.set(recent)
	_, ok := lt.get(recent.Pair)
	require.True(t, ok)

	lt.set(NewEntry("salt", "pepper", Verdict{Status: common.StatusDifferent}))

	_, ok = lt.get(hot.Pair)
	assert.False(t, ok)
	_, ok = lt.get(recent.Pair)
	assert.True(t, ok)
	assert.Equal(t, int64(1), lt.snapshot()["evictions"])
}

func TestLocalTierSetRefreshesEntry(t *testing.T) {
	common.InitNopLogger()
	lt := newLocalTier(2)
	first := NewEntry("a", "b", Verdict{Status: common.StatusSimilar})
	lt.set(first)
	lt.set(NewEntry("c", "d", Verdict{Status: common.StatusSame}))
	lt.set(NewEntry("b", "a", Verdict{Status: common.StatusSame}))
	lt.set(NewEntry("e", "f", Verdict{Status: common.StatusSame}))

	got, ok := lt.get(first.Pair)
	require.True(t, ok)
	assert.Equal(t, common.StatusSame, got.Status)
	_, ok = lt.get(NewPair("c", "d"))
	assert.False(t, ok)
	assert.Equal(t, 2, lt.snapshot()["size"])
}
