// ABOUTME: Heap registry backed by an arena of object slots with a free list
// ABOUTME: The dense live list is what sweep partitions into survivors and garbage

package vm

// heap owns every allocated object. Slot 0 is reserved so the zero Ref never
// names a live object. live holds exactly the occupied slots, in no
// particular order.
type heap struct {
	slots []object
	free  []uint32
	live  []uint32
	limit int // 0 means unbounded
}

func newHeap(limit int) *heap {
	return &heap{
		slots: make([]object, 1),
		limit: limit,
	}
}

// len returns the number of allocated objects
func (h *heap) len() int {
	return len(h.live)
}

// full reports whether an allocation would exceed the heap limit
func (h *heap) full() bool {
	return h.limit > 0 && len(h.live) >= h.limit
}

// alloc stores p in a free slot, reusing reclaimed slots first
func (h *heap) alloc(p Payload) Ref {
	var slot uint32
	if n := len(h.free); n > 0 {
		slot = h.free[n-1]
		h.free = h.free[:n-1]
	} else {
		slot = uint32(len(h.slots))
		h.slots = append(h.slots, object{})
	}

	obj := &h.slots[slot]
	obj.used = true
	obj.reached = false
	obj.payload = p
	h.live = append(h.live, slot)

	return Ref{slot: slot, gen: obj.gen}
}

// get resolves r, failing for Nil, out of range and reclaimed refs
func (h *heap) get(r Ref) (*object, error) {
	if r.IsNil() || int(r.slot) >= len(h.slots) {
		return nil, ErrInvalidRef
	}
	obj := &h.slots[r.slot]
	if !obj.used || obj.gen != r.gen {
		return nil, ErrInvalidRef
	}
	return obj, nil
}

// ref rebuilds the current Ref for an occupied slot
func (h *heap) ref(slot uint32) Ref {
	return Ref{slot: slot, gen: h.slots[slot].gen}
}

// release frees a slot. Bumping the generation invalidates outstanding refs.
func (h *heap) release(slot uint32) {
	obj := &h.slots[slot]
	obj.used = false
	obj.reached = false
	obj.payload = Payload{}
	obj.gen++
	h.free = append(h.free, slot)
}
