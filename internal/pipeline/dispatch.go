package pipeline

import (
	"context"
	"sync"

	"schedule-sync-go/internal/pqueue"
)

// dispatcher hands queued identities to workers and tracks in-flight work.
// The pool is done when the queue is empty AND nothing is in flight; a
// worker finding the queue empty parks until that condition resolves.
type dispatcher struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    *pqueue.Queue
	inflight int
}

func newDispatcher(queue *pqueue.Queue) *dispatcher {
	d := &dispatcher{queue: queue}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// watch wakes parked workers when the run is cancelled
func (d *dispatcher) watch(ctx context.Context) {
	<-ctx.Done()
	d.cond.Broadcast()
}

// next blocks until an identity is available. It returns false when the run
// is cancelled or no work remains anywhere.
func (d *dispatcher) next(ctx context.Context) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return "", false
		}
		if id, ok := d.queue.PopHighest(); ok {
			d.inflight++
			return id, true
		}
		if d.inflight == 0 {
			d.cond.Broadcast()
			return "", false
		}
		d.cond.Wait()
	}
}

// done releases an in-flight slot and wakes parked workers
func (d *dispatcher) done() {
	d.mu.Lock()
	d.inflight--
	d.mu.Unlock()
	d.cond.Broadcast()
}
