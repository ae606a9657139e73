// ABOUTME: Reachability from the root set, mirroring the collector's mark phase
// ABOUTME: Also computes how many objects each root alone keeps alive

package graph

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// Reachable returns the IDs of every object reachable from the roots.
// Dangling pointers to IDs missing from g are ignored.
func Reachable(g Graph) mapset.Set[ObjID] {
	return reachableFrom(g, g.GetRoots().IDs)
}

func reachableFrom(g Graph, roots []ObjID) mapset.Set[ObjID] {
	seen := mapset.NewThreadUnsafeSet[ObjID]()
	stack := make([]ObjID, 0, len(roots))

	visit := func(id ObjID) {
		if id == NilID || seen.Contains(id) || g.GetObject(id) == nil {
			return
		}
		seen.Add(id)
		stack = append(stack, id)
	}

	for _, id := range roots {
		visit(id)
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, ptr := range g.GetObject(id).Ptrs {
			visit(ptr)
		}
	}
	return seen
}

// Unreachable returns, in ID order, the objects a collection would reclaim
func Unreachable(g Graph) []ObjID {
	live := Reachable(g)
	var garbage []ObjID
	g.ForEachObject(func(obj *Object) {
		if !live.Contains(obj.ID) {
			garbage = append(garbage, obj.ID)
		}
	})
	slices.Sort(garbage)
	return garbage
}

// Retained returns how many objects would become garbage if the root at
// stack position index were dropped while every other root stays.
func Retained(g Graph, index int) int {
	roots := g.GetRoots().IDs
	if index < 0 || index >= len(roots) {
		return 0
	}
	others := make([]ObjID, 0, len(roots)-1)
	others = append(others, roots[:index]...)
	others = append(others, roots[index+1:]...)

	return Reachable(g).Cardinality() - reachableFrom(g, others).Cardinality()
}

// RetainedAll returns Retained for every root, in stack order
func RetainedAll(g Graph) []int {
	roots := g.GetRoots().IDs
	retained := make([]int, len(roots))
	for i := range roots {
		retained[i] = Retained(g, i)
	}
	return retained
}
