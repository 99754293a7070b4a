package reactor

import "time"

// timerEntry is one scheduled callback in the Reactor's timer heap, keyed
// by (deadline, id) per §9's "Timer store keyed by deadline, not by id":
// ordering by insertion id alone would make earliest-deadline lookup
// meaningless, so id is carried as a tie-break payload, not the sort key.
type timerEntry struct {
	deadline time.Time
	id       uint64
	cb       func()
	index    int // maintained by heap.Interface, used for O(log n) Cancel
}

// timerHeap is a container/heap min-heap ordered by (deadline, id).
type timerHeap []*timerEntry

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if !h[i].deadline.Equal(h[j].deadline) {
		return h[i].deadline.Before(h[j].deadline)
	}
	return h[i].id < h[j].id
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
