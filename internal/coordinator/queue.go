package coordinator

import (
	"sync"

	"github.com/five82/dcpflow/internal/model"
)

// workQueue is the coordinator's bounded FIFO, guarded by one mutex and two
// condition variables per §5 ("the queue and terminate flag share one mutex
// and two condition variables"). Go's channel primitive can't express the
// retry path's "push back to the *front*" requirement, so this is modeled
// directly on the spec's mutex/condvar design rather than on the teacher's
// channel-based dispatch.
type workQueue struct {
	mu        sync.Mutex
	notFull   *sync.Cond
	notEmpty  *sync.Cond
	allDone   *sync.Cond
	entries   []model.EncodeQueueEntry
	cap       int
	terminate bool

	// outstanding counts entries submitted but not yet successfully handled
	// (requeues on failure don't change it). finish() waits for it to reach
	// zero before asserting terminate, so a normal drain never discards work.
	outstanding int
}

func newWorkQueue(capacity int) *workQueue {
	q := &workQueue{cap: capacity}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	q.allDone = sync.NewCond(&q.mu)
	return q
}

// push enqueues new work at the tail, blocking while the queue is full.
// Returns false if the queue was terminated before room became available.
func (q *workQueue) push(e model.EncodeQueueEntry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.entries) >= q.cap && !q.terminate {
		q.notFull.Wait()
	}
	if q.terminate {
		return false
	}
	q.entries = append(q.entries, e)
	q.outstanding++
	q.notEmpty.Signal()
	return true
}

// complete marks one outstanding entry as finished (written, faked, or
// repeated successfully), waking finish() if it has reached zero.
func (q *workQueue) complete() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.outstanding--
	if q.outstanding == 0 {
		q.allDone.Broadcast()
	}
}

// waitUntilDrained blocks until every pushed entry has been completed.
func (q *workQueue) waitUntilDrained() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.outstanding > 0 && !q.terminate {
		q.allDone.Wait()
	}
}

// pushFront re-queues a failed attempt ahead of everything else. Retries
// bypass the capacity cap: they are not new work, and blocking a worker that
// is trying to give up its own entry back to the queue would deadlock.
func (q *workQueue) pushFront(e model.EncodeQueueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append([]model.EncodeQueueEntry{e}, q.entries...)
	q.notEmpty.Signal()
}

// pop blocks until an entry is available or the queue is terminated and
// drained, in which case ok is false.
func (q *workQueue) pop() (e model.EncodeQueueEntry, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.entries) == 0 && !q.terminate {
		q.notEmpty.Wait()
	}
	if q.terminate {
		// Workers stop taking new work the instant terminate is observed;
		// anything still queued is discarded here rather than processed.
		return model.EncodeQueueEntry{}, false
	}
	e, q.entries = q.entries[0], q.entries[1:]
	q.notFull.Signal()
	return e, true
}

// drainAll pops every remaining entry without blocking. Coordinator.Finish
// does not call it; it waits for the workers to empty the queue instead.
func (q *workQueue) drainAll() []model.EncodeQueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.entries
	q.entries = nil
	q.notFull.Broadcast()
	return out
}

// terminateNow sets the terminate flag and wakes every waiter, per §5's
// "setting a terminate flag wakes both empty- and full- condition
// variables".
func (q *workQueue) terminateNow() {
	q.mu.Lock()
	q.terminate = true
	q.mu.Unlock()
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
	q.allDone.Broadcast()
}

func (q *workQueue) isTerminated() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.terminate
}
