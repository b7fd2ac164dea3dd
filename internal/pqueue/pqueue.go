// Package pqueue implements the pending-identity priority queue. Identities
// with more unprocessed messages are popped first; ties go to the identity
// seen earlier, so a busy mailbox cannot starve an older one.
package pqueue

import (
	"container/heap"
	"sync"
)

type item struct {
	id    string
	score int
	seq   uint64 // insertion order, tie-break
	index int
}

type itemHeap []*item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score > h[j].score
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Queue is a concurrency-safe max-heap of identities scored by pending
// message count.
type Queue struct {
	mu      sync.Mutex
	heap    itemHeap
	byID    map[string]*item
	nextSeq uint64
}

func New() *Queue {
	return &Queue{byID: make(map[string]*item)}
}

// Push inserts an identity with the given score, or adds to its score if it
// is already queued. A re-inserted identity gets a fresh insertion sequence.
func (q *Queue) Push(id string, score int) {
	if score <= 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.byID[id]; ok {
		existing.score += score
		heap.Fix(&q.heap, existing.index)
		return
	}

	it := &item{id: id, score: score, seq: q.nextSeq}
	q.nextSeq++
	q.byID[id] = it
	heap.Push(&q.heap, it)
}

// PopHighest removes and returns the identity with the highest score.
// The second return is false when the queue is empty.
func (q *Queue) PopHighest() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return "", false
	}
	it := heap.Pop(&q.heap).(*item)
	delete(q.byID, it.id)
	return it.id, true
}

// UpdateScore adjusts a queued identity's score by delta. An identity whose
// score drops to zero or below is removed.
func (q *Queue) UpdateScore(id string, delta int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	it, ok := q.byID[id]
	if !ok {
		return
	}
	it.score += delta
	if it.score <= 0 {
		heap.Remove(&q.heap, it.index)
		delete(q.byID, id)
		return
	}
	heap.Fix(&q.heap, it.index)
}

// Len returns the number of queued identities
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}
