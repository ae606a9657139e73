// ABOUTME: Exports the machine heap as a graph snapshot for analysis and dumps
// ABOUTME: Object IDs are arena slots, so they match Ref.Slot

package vm

import (
	"github.com/prateek/stackgc/graph"
)

// Snapshot copies the current heap and root stack into a graph. Unreachable
// objects that have not been collected yet are included.
func (m *Machine) Snapshot() *graph.MemGraph {
	g := graph.NewMemGraph()

	for _, slot := range m.heap.live {
		obj := &m.heap.slots[slot]
		gobj := &graph.Object{
			ID:   graph.ObjID(slot),
			Kind: obj.payload.kind.String(),
		}
		switch obj.payload.kind {
		case KindInt:
			gobj.Value = obj.payload.value
		case KindPair:
			// Positional: Nil keeps its place as graph.NilID
			gobj.Ptrs = []graph.ObjID{
				graph.ObjID(obj.payload.first.slot),
				graph.ObjID(obj.payload.second.slot),
			}
		}
		g.AddObject(gobj)
	}

	roots := graph.Roots{IDs: make([]graph.ObjID, 0, m.roots.len())}
	for _, r := range m.roots.data {
		roots.IDs = append(roots.IDs, graph.ObjID(r.slot))
	}
	g.SetRoots(roots)

	return g
}
