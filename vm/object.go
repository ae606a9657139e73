// ABOUTME: Object model for the collected heap: refs, kinds and payloads
// ABOUTME: A pair holds two independently nullable refs and may form cycles

package vm

import "fmt"

// Ref is a handle to a heap object: its arena slot and the slot generation
// at allocation time. A Ref outlives its object; once the slot is reclaimed
// the generation no longer matches and lookups fail with ErrInvalidRef.
type Ref struct {
	slot uint32
	gen  uint32
}

// Nil is the empty reference. Slot 0 is never allocated.
var Nil = Ref{}

// IsNil reports whether r is the empty reference
func (r Ref) IsNil() bool {
	return r.slot == 0
}

// Slot returns the arena slot index, stable for the lifetime of the object
func (r Ref) Slot() uint32 {
	return r.slot
}

func (r Ref) String() string {
	if r.IsNil() {
		return "nil"
	}
	return fmt.Sprintf("#%d.%d", r.slot, r.gen)
}

// Kind distinguishes scalar objects from pairs
type Kind uint8

const (
	KindInt Kind = iota + 1
	KindPair
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindPair:
		return "pair"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Payload is the contents of a new object. Build one with Int or Pair.
type Payload struct {
	kind   Kind
	value  int64
	first  Ref
	second Ref
}

// Int returns a scalar payload
func Int(v int64) Payload {
	return Payload{kind: KindInt, value: v}
}

// Pair returns a link payload. Either child may be Nil.
func Pair(first, second Ref) Payload {
	return Payload{kind: KindPair, first: first, second: second}
}

// Kind returns the payload kind
func (p Payload) Kind() Kind {
	return p.kind
}

// object is one arena slot. reached is the mark bit; it is only ever true
// between markAll and the end of the following sweep.
type object struct {
	gen     uint32
	used    bool
	reached bool
	payload Payload
}

// children appends the non-nil links of o to dst
func (o *object) children(dst []Ref) []Ref {
	if o.payload.kind != KindPair {
		return dst
	}
	if !o.payload.first.IsNil() {
		dst = append(dst, o.payload.first)
	}
	if !o.payload.second.IsNil() {
		dst = append(dst, o.payload.second)
	}
	return dst
}
