// ABOUTME: Mark and sweep phases of the collector
// ABOUTME: Marking uses an explicit work list so deep or cyclic graphs are safe

package vm

import "fmt"

// Stats reports the outcome of one collection
type Stats struct {
	Collected int
	Remaining int
}

// markAll sets the reached bit on everything reachable from the root stack
// and from pins. An object is marked when it is first queued, so each object
// enters the work list at most once per cycle.
func (m *Machine) markAll(pins []Ref) int {
	work := m.work[:0]
	marked := 0

	enqueue := func(r Ref) {
		if r.IsNil() {
			return
		}
		obj := &m.heap.slots[r.slot]
		if obj.reached {
			return
		}
		obj.reached = true
		marked++
		work = append(work, r)
	}

	for _, r := range m.roots.data {
		enqueue(r)
	}
	for _, r := range pins {
		enqueue(r)
	}

	for len(work) > 0 {
		r := work[len(work)-1]
		work = work[:len(work)-1]

		obj := &m.heap.slots[r.slot]
		if obj.payload.kind != KindPair {
			continue
		}
		enqueue(obj.payload.first)
		enqueue(obj.payload.second)
	}

	m.work = work[:0]
	return marked
}

// sweep reclaims every unreached object and clears the bit on survivors.
// The live list is filtered in place.
func (m *Machine) sweep() int {
	h := m.heap
	survivors := h.live[:0]
	collected := 0

	for _, slot := range h.live {
		obj := &h.slots[slot]
		if !obj.reached {
			h.release(slot)
			m.live--
			collected++
			continue
		}
		obj.reached = false
		survivors = append(survivors, slot)
	}

	h.live = survivors
	return collected
}

// collect runs a full cycle and recomputes the threshold from the survivors
func (m *Machine) collect(pins ...Ref) Stats {
	marked := m.markAll(pins)
	collected := m.sweep()

	if m.live == 0 {
		m.threshold = m.cfg.InitialThreshold
	} else {
		m.threshold = m.live * 2
	}
	m.cycles++

	stats := Stats{Collected: collected, Remaining: m.live}
	m.log.Debug("Collected objects",
		"cycle", m.cycles,
		"marked", marked,
		"collected", stats.Collected,
		"remaining", stats.Remaining,
		"threshold", m.threshold,
	)
	return stats
}

func (s Stats) String() string {
	return fmt.Sprintf("Collected %d objects, %d remaining.", s.Collected, s.Remaining)
}
