// ABOUTME: Behavioural tests for the machine and its collector
// ABOUTME: Covers root preservation, reclamation, cycles, thresholds and teardown

package vm

import (
	"bytes"
	"testing"

	"github.com/prateek/stackgc/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"
)

func newMachine(t *testing.T, cfg Config) *Machine {
	t.Helper()
	m, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func pushInts(t *testing.T, m *Machine, vals ...int64) []Ref {
	t.Helper()
	refs := make([]Ref, len(vals))
	for i, v := range vals {
		ref, err := m.PushInt(v)
		require.NoError(t, err)
		refs[i] = ref
	}
	return refs
}

func TestRootsArePreserved(t *testing.T) {
	m := newMachine(t, DefaultConfig)
	refs := pushInts(t, m, 1, 2)

	stats := m.GC()
	assert.Equal(t, Stats{Collected: 0, Remaining: 2}, stats)
	assert.Equal(t, 2, m.Live())

	for i, ref := range refs {
		v, err := m.Int(ref)
		require.NoError(t, err)
		assert.Equal(t, int64(i+1), v)
	}
}

func TestUnreachableObjectsAreCollected(t *testing.T) {
	m := newMachine(t, DefaultConfig)
	pushInts(t, m, 1, 2)
	_, err := m.Pop()
	require.NoError(t, err)
	_, err = m.Pop()
	require.NoError(t, err)

	// Popping alone frees nothing
	assert.Equal(t, 2, m.Live())

	stats := m.GC()
	assert.Equal(t, Stats{Collected: 2, Remaining: 0}, stats)
	assert.Equal(t, 0, m.Live())
}

func TestNestedPairsAreReachable(t *testing.T) {
	m := newMachine(t, DefaultConfig)
	refs := pushInts(t, m, 1, 2)
	inner1, err := m.PushPair()
	require.NoError(t, err)
	refs = append(refs, pushInts(t, m, 3, 4)...)
	inner2, err := m.PushPair()
	require.NoError(t, err)
	outer, err := m.PushPair()
	require.NoError(t, err)

	require.Equal(t, 7, m.Live())
	assert.Equal(t, 1, m.Depth())
	assert.Equal(t, Stats{Collected: 0, Remaining: 7}, m.GC())

	// The first popped ref (the top of the stack) becomes the first child
	first, second, err := m.Pair(outer)
	require.NoError(t, err)
	assert.Equal(t, inner2, first)
	assert.Equal(t, inner1, second)

	first, second, err = m.Pair(inner1)
	require.NoError(t, err)
	assert.Equal(t, refs[1], first)
	assert.Equal(t, refs[0], second)

	first, second, err = m.Pair(inner2)
	require.NoError(t, err)
	assert.Equal(t, refs[3], first)
	assert.Equal(t, refs[2], second)
}

// buildPair pushes two ints and pairs them, leaving the pair on the stack
func buildPair(t *testing.T, m *Machine, a, b int64) Ref {
	t.Helper()
	pushInts(t, m, a, b)
	ref, err := m.PushPair()
	require.NoError(t, err)
	return ref
}

func TestUnreachableCycleIsCollected(t *testing.T) {
	m := newMachine(t, DefaultConfig)
	a := buildPair(t, m, 1, 2)
	b := buildPair(t, m, 3, 4)
	require.NoError(t, m.SetFirst(a, b))
	require.NoError(t, m.SetFirst(b, a))

	_, err := m.Pop()
	require.NoError(t, err)
	_, err = m.Pop()
	require.NoError(t, err)

	stats := m.GC()
	assert.Equal(t, Stats{Collected: 6, Remaining: 0}, stats)

	_, err = m.Kind(a)
	assert.ErrorIs(t, err, ErrInvalidRef)
	_, err = m.Kind(b)
	assert.ErrorIs(t, err, ErrInvalidRef)
}

func TestReachableCycleIsMarkedOnce(t *testing.T) {
	m := newMachine(t, DefaultConfig)
	a := buildPair(t, m, 1, 2) // a -> (2, 1)
	b := buildPair(t, m, 3, 4) // b -> (4, 3)
	require.NoError(t, m.SetFirst(a, b))
	require.NoError(t, m.SetFirst(b, a))
	_, err := m.Pop() // b now only reachable through a
	require.NoError(t, err)

	// a, b, 1 and 3 are reachable; 2 and 4 lost their only referrer
	assert.Equal(t, 4, m.markAll(nil))
	assert.Equal(t, 2, m.sweep())
	assert.Equal(t, 4, m.Live())

	assert.Equal(t, Stats{Collected: 0, Remaining: 4}, m.GC())
}

func TestSelfReferenceIsCollected(t *testing.T) {
	m := newMachine(t, DefaultConfig)
	a := buildPair(t, m, 1, 2)
	require.NoError(t, m.SetFirst(a, a))
	require.NoError(t, m.SetSecond(a, a))

	assert.Equal(t, Stats{Collected: 2, Remaining: 1}, m.GC())

	_, err := m.Pop()
	require.NoError(t, err)
	assert.Equal(t, Stats{Collected: 1, Remaining: 0}, m.GC())
}

func TestThresholdGrowsWithSurvivors(t *testing.T) {
	m := newMachine(t, DefaultConfig)
	assert.Equal(t, 8, m.Threshold())

	// The initial threshold allows eight allocations without collecting
	pushInts(t, m, 1, 2, 3, 4, 5, 6, 7, 8)
	assert.Equal(t, 0, m.Collections())

	pushInts(t, m, 9)
	assert.Equal(t, 1, m.Collections())
	assert.Equal(t, 16, m.Threshold())
	assert.Equal(t, 9, m.Live())

	// Eight survivors allow eight more allocations before the next collection
	pushInts(t, m, 10, 11, 12, 13, 14, 15, 16)
	assert.Equal(t, 1, m.Collections())
	pushInts(t, m, 17)
	assert.Equal(t, 2, m.Collections())
	assert.Equal(t, 32, m.Threshold())
}

func TestThresholdAfterExplicitCollection(t *testing.T) {
	m := newMachine(t, DefaultConfig)
	pushInts(t, m, 1, 2, 3)
	m.GC()
	require.Equal(t, 6, m.Threshold())
	cycles := m.Collections()

	pushInts(t, m, 4, 5, 6)
	assert.Equal(t, cycles, m.Collections(), "collected before K further allocations")
	pushInts(t, m, 7)
	assert.Equal(t, cycles+1, m.Collections())
}

func TestThresholdResetsWhenHeapEmpties(t *testing.T) {
	m := newMachine(t, Config{StackCapacity: 16, InitialThreshold: 3})
	pushInts(t, m, 1, 2, 3, 4)
	assert.Equal(t, 6, m.Threshold())

	for m.Depth() > 0 {
		_, err := m.Pop()
		require.NoError(t, err)
	}
	m.GC()
	assert.Equal(t, 0, m.Live())
	assert.Equal(t, 3, m.Threshold())
}

func TestRepeatedCollectionIsIdempotent(t *testing.T) {
	m := newMachine(t, DefaultConfig)
	buildPair(t, m, 1, 2)
	pushInts(t, m, 3)
	_, err := m.Pop()
	require.NoError(t, err)

	first := m.GC()
	second := m.GC()
	assert.Equal(t, Stats{Collected: 1, Remaining: 3}, first)
	assert.Equal(t, Stats{Collected: 0, Remaining: 3}, second)
}

func TestEmptyCollection(t *testing.T) {
	m := newMachine(t, DefaultConfig)
	assert.Equal(t, Stats{}, m.GC())
	assert.Equal(t, DefaultConfig.InitialThreshold, m.Threshold())
}

func TestCloseReclaimsEverything(t *testing.T) {
	m, err := New(DefaultConfig)
	require.NoError(t, err)
	buildPair(t, m, 1, 2)
	pushInts(t, m, 3, 4)

	stats := m.Close()
	assert.Equal(t, Stats{Collected: 5, Remaining: 0}, stats)
	assert.Equal(t, 0, m.Live())
	assert.Equal(t, 0, m.Depth())
	assert.True(t, m.Closed())
	assert.Empty(t, m.heap.live)

	// Idempotent, and the machine refuses further work
	assert.Equal(t, Stats{}, m.Close())
	_, err = m.PushInt(1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.PushPair()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = m.Pop()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStackOverflow(t *testing.T) {
	m := newMachine(t, Config{StackCapacity: 2, InitialThreshold: 8})
	pushInts(t, m, 1, 2)

	_, err := m.PushInt(3)
	require.ErrorIs(t, err, ErrStackOverflow)

	var serr *StackError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 3, serr.Required)
	assert.Equal(t, 2, serr.Have)

	assert.Equal(t, 2, m.Live())
	assert.Equal(t, 2, m.Depth())
}

func TestStackUnderflow(t *testing.T) {
	m := newMachine(t, DefaultConfig)

	_, err := m.Pop()
	assert.ErrorIs(t, err, ErrStackUnderflow)
	_, err = m.Peek()
	assert.ErrorIs(t, err, ErrStackUnderflow)

	pushInts(t, m, 1)
	_, err = m.PushPair()
	require.ErrorIs(t, err, ErrStackUnderflow)
	assert.EqualError(t, err, "stack underflow: require 2, have 1")

	assert.Equal(t, 1, m.Live())
	assert.Equal(t, 1, m.Depth())
}

func TestStaleRefs(t *testing.T) {
	m := newMachine(t, DefaultConfig)
	old := pushInts(t, m, 1)[0]
	_, err := m.Pop()
	require.NoError(t, err)
	m.GC()

	_, err = m.Int(old)
	assert.ErrorIs(t, err, ErrInvalidRef)

	// The slot is reused but the old ref stays dead
	fresh := pushInts(t, m, 2)[0]
	assert.Equal(t, old.Slot(), fresh.Slot())
	assert.NotEqual(t, old, fresh)
	_, err = m.Int(old)
	assert.ErrorIs(t, err, ErrInvalidRef)

	_, err = m.Kind(Nil)
	assert.ErrorIs(t, err, ErrInvalidRef)
	p, err := m.Push(Pair(Nil, Nil))
	require.NoError(t, err)
	assert.ErrorIs(t, m.SetFirst(p, old), ErrInvalidRef)
	_, err = m.Push(Pair(old, Nil))
	assert.ErrorIs(t, err, ErrInvalidRef)
}

func TestLinksOnScalars(t *testing.T) {
	m := newMachine(t, DefaultConfig)
	ref := pushInts(t, m, 1)[0]

	assert.ErrorIs(t, m.SetFirst(ref, Nil), ErrNotPair)
	_, _, err := m.Pair(ref)
	assert.ErrorIs(t, err, ErrNotPair)

	p := buildPair(t, m, 2, 3)
	_, err = m.Int(p)
	assert.ErrorIs(t, err, ErrNotInt)
	kind, err := m.Kind(p)
	require.NoError(t, err)
	assert.Equal(t, KindPair, kind)
}

func TestPushZeroPayload(t *testing.T) {
	m := newMachine(t, DefaultConfig)

	_, err := m.Push(Payload{})
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.Equal(t, 0, m.Live())
	assert.Equal(t, 0, m.Depth())
}

func TestNilLinks(t *testing.T) {
	m := newMachine(t, DefaultConfig)
	p, err := m.Push(Pair(Nil, Nil))
	require.NoError(t, err)

	first, second, err := m.Pair(p)
	require.NoError(t, err)
	assert.True(t, first.IsNil())
	assert.True(t, second.IsNil())
	assert.Equal(t, Stats{Collected: 0, Remaining: 1}, m.GC())
}

func TestPushPairCollectsWhileChildrenAreRooted(t *testing.T) {
	m := newMachine(t, Config{StackCapacity: 8, InitialThreshold: 2})
	refs := pushInts(t, m, 1, 2)

	p, err := m.PushPair()
	require.NoError(t, err)
	assert.Equal(t, 1, m.Collections())
	assert.Equal(t, 3, m.Live())

	first, second, err := m.Pair(p)
	require.NoError(t, err)
	assert.Equal(t, refs[1], first)
	assert.Equal(t, refs[0], second)
	v, err := m.Int(first)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestPushPinsUnrootedChildren(t *testing.T) {
	m := newMachine(t, Config{StackCapacity: 8, InitialThreshold: 2})
	refs := pushInts(t, m, 1, 2)
	for range refs {
		_, err := m.Pop()
		require.NoError(t, err)
	}

	// Allocating the pair triggers a collection; its children must survive
	p, err := m.Push(Pair(refs[0], refs[1]))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Collections())
	assert.Equal(t, 3, m.Live())

	first, _, err := m.Pair(p)
	require.NoError(t, err)
	v, err := m.Int(first)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestHeapLimit(t *testing.T) {
	m := newMachine(t, Config{StackCapacity: 8, InitialThreshold: 8, HeapLimit: 2})
	pushInts(t, m, 1, 2)

	_, err := m.PushInt(3)
	require.ErrorIs(t, err, ErrOutOfMemory)
	assert.Equal(t, 2, m.Depth())
	assert.Equal(t, 1, m.Collections())

	// Dropping a root makes room at the next allocation
	_, err = m.Pop()
	require.NoError(t, err)
	pushInts(t, m, 3)
	assert.Equal(t, 2, m.Live())
}

func TestDeepChain(t *testing.T) {
	const depth = 100000
	m := newMachine(t, DefaultConfig)
	pushInts(t, m, 0)
	for i := 1; i <= depth; i++ {
		pushInts(t, m, int64(i))
		_, err := m.PushPair()
		require.NoError(t, err)
	}

	assert.Equal(t, 1, m.Depth())
	stats := m.GC()
	assert.Equal(t, 2*depth+1, stats.Remaining)

	_, err := m.Pop()
	require.NoError(t, err)
	assert.Equal(t, Stats{Collected: 2*depth + 1, Remaining: 0}, m.GC())
}

func TestCollectionsAreLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m, err := New(DefaultConfig, WithLogger(logger))
	require.NoError(t, err)

	pushInts(t, m, 1)
	m.GC()
	m.Close()

	out := buf.String()
	assert.Contains(t, out, "Collected objects")
	assert.Contains(t, out, "remaining=1")
	assert.Contains(t, out, "Machine closed")
}

func TestStatsString(t *testing.T) {
	assert.Equal(t, "Collected 3 objects, 2 remaining.", Stats{Collected: 3, Remaining: 2}.String())
}

func TestSnapshot(t *testing.T) {
	m := newMachine(t, DefaultConfig)
	p := buildPair(t, m, 1, 2)
	garbage := pushInts(t, m, 3)[0]
	_, err := m.Pop()
	require.NoError(t, err)

	g := m.Snapshot()
	assert.Equal(t, m.Live(), g.NumObjects())
	assert.Equal(t, []graph.ObjID{graph.ObjID(p.Slot())}, g.GetRoots().IDs)

	obj := g.GetObject(graph.ObjID(p.Slot()))
	require.NotNil(t, obj)
	assert.Equal(t, "pair", obj.Kind)
	assert.Len(t, obj.Ptrs, 2)

	obj = g.GetObject(graph.ObjID(garbage.Slot()))
	require.NotNil(t, obj)
	assert.Equal(t, int64(3), obj.Value)
}

func TestSnapshotKeepsLinkPositions(t *testing.T) {
	m := newMachine(t, DefaultConfig)
	x := pushInts(t, m, 1)[0]
	left, err := m.Push(Pair(x, Nil))
	require.NoError(t, err)
	right, err := m.Push(Pair(Nil, x))
	require.NoError(t, err)

	g := m.Snapshot()
	xid := graph.ObjID(x.Slot())
	assert.Equal(t, []graph.ObjID{xid, graph.NilID}, g.GetObject(graph.ObjID(left.Slot())).Ptrs)
	assert.Equal(t, []graph.ObjID{graph.NilID, xid}, g.GetObject(graph.ObjID(right.Slot())).Ptrs)
	assert.Equal(t, 3, graph.Reachable(g).Cardinality())
}
