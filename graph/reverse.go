// ABOUTME: Builds reverse edges for graph traversal
// ABOUTME: Maps objects to their referrers for paths-to-roots

package graph

// ReverseEdges maps each object to the objects that point to it
type ReverseEdges map[ObjID][]ObjID

// BuildReverseEdges creates a map of reverse edges. Empty links are skipped,
// and a pair whose two children are the same object is recorded once.
func BuildReverseEdges(g Graph) ReverseEdges {
	reverse := make(ReverseEdges)

	g.ForEachObject(func(obj *Object) {
		for i, targetID := range obj.Ptrs {
			if targetID == NilID || (i > 0 && obj.Ptrs[i-1] == targetID) {
				continue
			}
			reverse[targetID] = append(reverse[targetID], obj.ID)
		}
	})

	return reverse
}
