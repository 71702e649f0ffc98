package scheduler

import "container/heap"

// readyHeap orders tasks by (executeTick ascending, priority descending),
// matching the original ScheduledTask.compareTo. It implements
// container/heap.Interface directly rather than wrapping
// sort.Interface, the idiomatic Go shape for a priority queue.
type readyHeap []*task

func (h readyHeap) Len() int { return len(h) }

func (h readyHeap) Less(i, j int) bool {
	if h[i].executeTick != h[j].executeTick {
		return h[i].executeTick < h[j].executeTick
	}
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].id < h[j].id
}

func (h readyHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *readyHeap) Push(x any) {
	t := x.(*task)
	t.heapIndex = len(*h)
	*h = append(*h, t)
}

func (h *readyHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.heapIndex = -1
	*h = old[:n-1]
	return t
}

var _ heap.Interface = (*readyHeap)(nil)
