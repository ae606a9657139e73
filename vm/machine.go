// ABOUTME: Stack machine owning the root stack, the heap and the collection policy
// ABOUTME: Allocation checks the threshold first; teardown reclaims the whole heap

package vm

import (
	"fmt"

	"golang.org/x/exp/slog"
)

// Machine is a stack machine with a collected heap. Every push allocates a
// new object and roots it on the stack; popping only unroots, reclamation is
// deferred to the next collection.
//
// A Machine is not safe for concurrent use.
type Machine struct {
	cfg   Config
	roots *stack
	heap  *heap

	live      int // always heap.len() outside sweep
	threshold int
	cycles    int
	closed    bool

	work []Ref // mark work list, reused between cycles
	log  *slog.Logger
}

// Option customises a Machine at construction
type Option func(*Machine)

// WithLogger sets the logger collections are reported to
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) {
		m.log = l
	}
}

// New creates a machine with an empty heap and root stack
func New(cfg Config, opts ...Option) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m := &Machine{
		cfg:       cfg,
		roots:     newStack(cfg.StackCapacity),
		heap:      newHeap(cfg.HeapLimit),
		threshold: cfg.InitialThreshold,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// NewDefault creates a machine with DefaultConfig
func NewDefault(opts ...Option) *Machine {
	m, err := New(DefaultConfig, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// Push allocates an object holding p and pushes it as a new root. Pair
// payloads may reference unrooted objects; they are kept alive across any
// collection the allocation triggers.
func (m *Machine) Push(p Payload) (Ref, error) {
	if m.closed {
		return Nil, ErrClosed
	}
	var pins []Ref
	switch p.kind {
	case KindInt:
	case KindPair:
		for _, child := range [2]Ref{p.first, p.second} {
			if child.IsNil() {
				continue
			}
			if _, err := m.heap.get(child); err != nil {
				return Nil, fmt.Errorf("pair child %v: %w", child, err)
			}
			pins = append(pins, child)
		}
	default:
		return Nil, fmt.Errorf("push: %w: unknown kind %v", ErrInvalidPayload, p.kind)
	}
	if err := m.roots.room(1); err != nil {
		return Nil, err
	}
	if err := m.reserve(pins...); err != nil {
		return Nil, err
	}
	return m.allocRoot(p), nil
}

// PushInt pushes a new scalar object
func (m *Machine) PushInt(v int64) (Ref, error) {
	return m.Push(Int(v))
}

// PushPair pops two roots and pushes a pair linking them. The first ref
// popped (the top of the stack) becomes the pair's first child.
func (m *Machine) PushPair() (Ref, error) {
	if m.closed {
		return Nil, ErrClosed
	}
	if err := m.roots.require(2); err != nil {
		return Nil, err
	}
	// Collect while both children are still rooted.
	if err := m.reserve(); err != nil {
		return Nil, err
	}
	first, _ := m.roots.pop()
	second, _ := m.roots.pop()
	return m.allocRoot(Pair(first, second)), nil
}

// Pop removes the top root. The object stays allocated until a collection
// finds it unreachable.
func (m *Machine) Pop() (Ref, error) {
	if m.closed {
		return Nil, ErrClosed
	}
	return m.roots.pop()
}

// Peek returns the top root without removing it
func (m *Machine) Peek() (Ref, error) {
	return m.roots.peek()
}

// GC runs a full collection. It never fails; on a closed machine it is a
// no-op collection over the already empty heap.
func (m *Machine) GC() Stats {
	return m.collect()
}

// Close drops every root and runs a final collection, reclaiming the whole
// heap. Later mutating calls return ErrClosed. Close is idempotent.
func (m *Machine) Close() Stats {
	if m.closed {
		return Stats{}
	}
	m.roots.reset()
	stats := m.collect()
	m.closed = true
	m.log.Debug("Machine closed", "collected", stats.Collected, "cycles", m.cycles)
	return stats
}

// reserve runs a collection when the threshold or the heap limit is reached
// and fails if the heap is still full afterwards.
func (m *Machine) reserve(pins ...Ref) error {
	if m.live >= m.threshold || m.heap.full() {
		m.collect(pins...)
	}
	if m.heap.full() {
		return fmt.Errorf("%w: heap limit of %d objects reached", ErrOutOfMemory, m.cfg.HeapLimit)
	}
	return nil
}

// allocRoot allocates p and roots it. Callers have checked stack room.
func (m *Machine) allocRoot(p Payload) Ref {
	ref := m.heap.alloc(p)
	m.live++
	m.roots.data = append(m.roots.data, ref)
	return ref
}

// Kind returns the kind of the object ref names
func (m *Machine) Kind(ref Ref) (Kind, error) {
	obj, err := m.heap.get(ref)
	if err != nil {
		return 0, err
	}
	return obj.payload.kind, nil
}

// Int returns the value of a scalar object
func (m *Machine) Int(ref Ref) (int64, error) {
	obj, err := m.heap.get(ref)
	if err != nil {
		return 0, err
	}
	if obj.payload.kind != KindInt {
		return 0, fmt.Errorf("object %v: %w", ref, ErrNotInt)
	}
	return obj.payload.value, nil
}

// Pair returns both children of a pair object
func (m *Machine) Pair(ref Ref) (first, second Ref, err error) {
	obj, err := m.heap.get(ref)
	if err != nil {
		return Nil, Nil, err
	}
	if obj.payload.kind != KindPair {
		return Nil, Nil, fmt.Errorf("object %v: %w", ref, ErrNotPair)
	}
	return obj.payload.first, obj.payload.second, nil
}

// SetFirst replaces the first child of a pair. target may be Nil.
func (m *Machine) SetFirst(ref, target Ref) error {
	return m.setLink(ref, target, false)
}

// SetSecond replaces the second child of a pair. target may be Nil.
func (m *Machine) SetSecond(ref, target Ref) error {
	return m.setLink(ref, target, true)
}

func (m *Machine) setLink(ref, target Ref, second bool) error {
	if m.closed {
		return ErrClosed
	}
	obj, err := m.heap.get(ref)
	if err != nil {
		return err
	}
	if obj.payload.kind != KindPair {
		return fmt.Errorf("object %v: %w", ref, ErrNotPair)
	}
	if !target.IsNil() {
		if _, err := m.heap.get(target); err != nil {
			return fmt.Errorf("link target %v: %w", target, err)
		}
	}
	if second {
		obj.payload.second = target
	} else {
		obj.payload.first = target
	}
	return nil
}

// Live returns the number of allocated objects, reachable or not
func (m *Machine) Live() int {
	return m.live
}

// Threshold returns the live count at which the next allocation collects
func (m *Machine) Threshold() int {
	return m.threshold
}

// Depth returns the number of roots on the stack
func (m *Machine) Depth() int {
	return m.roots.len()
}

// Roots returns a copy of the root stack, bottom first
func (m *Machine) Roots() []Ref {
	return append([]Ref(nil), m.roots.data...)
}

// Collections returns the number of collection cycles run so far
func (m *Machine) Collections() int {
	return m.cycles
}

// Config returns the settings the machine was built with
func (m *Machine) Config() Config {
	return m.cfg
}

// Closed reports whether Close has run
func (m *Machine) Closed() bool {
	return m.closed
}
