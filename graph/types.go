// ABOUTME: Core data types for a snapshot of the collected heap
// ABOUTME: Defines Object, ObjID, and Roots structures

package graph

// ObjID identifies an object within one snapshot
type ObjID uint64

// NilID never names an object; in Ptrs it marks an empty link
const NilID ObjID = 0

// Object kinds as they appear in snapshots and dumps
const (
	KindInt  = "int"
	KindPair = "pair"
)

// Object is a single heap object. Ints carry Value; pairs carry up to two
// Ptrs, first child before second. Ptrs are positional: a NilID entry is an
// empty link and a missing trailing entry is treated the same way.
type Object struct {
	ID    ObjID
	Kind  string
	Value int64
	Ptrs  []ObjID
}

// Roots is the root stack at snapshot time, bottom first
type Roots struct {
	IDs []ObjID
}
