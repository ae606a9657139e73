// ABOUTME: BFS algorithm for finding paths from objects to GC roots
// ABOUTME: Explains why an object survived a collection; each object is visited once

package graph

import (
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// Path represents a path from an object to a root
type Path struct {
	IDs []ObjID // Sequence of object IDs from target to root
}

// PathsToRoots finds up to maxPaths paths from an object to the roots, one
// per distinct root, shortest first. The search walks reverse edges
// breadth-first and enqueues every object at most once, so its cost follows
// the size of the graph however much sharing the heap has. Referrers are
// explored in ID order so results are deterministic. An object with no path
// is garbage at the next collection.
func PathsToRoots(g Graph, from ObjID, maxPaths int) []Path {
	if maxPaths <= 0 || g.GetObject(from) == nil {
		return nil
	}

	reverse := BuildReverseEdges(g)
	for _, referrers := range reverse {
		slices.Sort(referrers)
	}

	rootSet := mapset.NewThreadUnsafeSet(g.GetRoots().IDs...)
	if rootSet.Contains(from) {
		return []Path{{IDs: []ObjID{from}}}
	}

	// parent[id] is the referent through which id was first reached
	parent := map[ObjID]ObjID{from: from}
	pathTo := func(root ObjID) Path {
		ids := []ObjID{root}
		for id := root; id != from; {
			id = parent[id]
			ids = append(ids, id)
		}
		slices.Reverse(ids)
		return Path{IDs: ids}
	}

	var result []Path
	queue := []ObjID{from}

	for len(queue) > 0 && len(result) < maxPaths {
		id := queue[0]
		queue = queue[1:]

		for _, referrerID := range reverse[id] {
			if _, seen := parent[referrerID]; seen {
				continue
			}
			parent[referrerID] = id

			// Paths stop at the first root they meet
			if rootSet.Contains(referrerID) {
				result = append(result, pathTo(referrerID))
				if len(result) >= maxPaths {
					break
				}
				continue
			}
			queue = append(queue, referrerID)
		}
	}

	return result
}
