package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgeboard/forgeboard/pkg/protocol"
)

const (
	// maxQueueSize is the bound at which the queue is trimmed.
	maxQueueSize = 1000

	// keepOnTrim is how many of the newest entries survive a trim.
	keepOnTrim = 500

	// maxProcessAttempts caps retries for a failing item. After the cap
	// the item is marked processed and the failure is swallowed so a
	// poison message can never block the queue.
	maxProcessAttempts = 3
)

// queueItem wraps one inbound event for at-least-once processing.
type queueItem struct {
	id         string
	env        *protocol.Envelope
	receivedAt time.Time
	processed  bool
	retryCount int
}

// messageQueue buffers inbound events in arrival order.
//
// The mutex guards the items slice and the per-item bookkeeping fields
// (processed, retryCount): drain runs on the read-loop goroutine while
// depth queries arrive from API handler goroutines, so every field
// access goes through q.mu. Only the process callback itself runs
// outside the lock.
type messageQueue struct {
	mu    sync.Mutex
	items []*queueItem
}

func newMessageQueue() *messageQueue {
	return &messageQueue{}
}

// push appends an event and returns its queue item.
func (q *messageQueue) push(env *protocol.Envelope, now time.Time) *queueItem {
	item := &queueItem{
		id:         uuid.New().String(),
		env:        env,
		receivedAt: now,
	}

	q.mu.Lock()
	q.items = append(q.items, item)
	if len(q.items) > maxQueueSize {
		// Bounded-memory policy: sacrifice the oldest history, keep the
		// newest entries in their original relative order.
		q.items = append(q.items[:0:0], q.items[len(q.items)-keepOnTrim:]...)
	}
	q.mu.Unlock()

	return item
}

// drain processes every unprocessed item in arrival order. A failing
// item has its retry count bumped and stays queued for the next drain;
// once it reaches maxProcessAttempts it is marked processed anyway and
// reported through onDrop.
//
// Processing happens outside the lock so handlers can call back into
// depth/unprocessed without deadlocking; the item bookkeeping updates
// reacquire it.
func (q *messageQueue) drain(process func(*queueItem) error, onDrop func(*queueItem)) {
	q.mu.Lock()
	pending := make([]*queueItem, 0, len(q.items))
	for _, item := range q.items {
		if !item.processed {
			pending = append(pending, item)
		}
	}
	q.mu.Unlock()

	for _, item := range pending {
		err := process(item)

		q.mu.Lock()
		dropped := false
		if err != nil {
			item.retryCount++
			if item.retryCount >= maxProcessAttempts {
				item.processed = true
				dropped = true
			}
		} else {
			item.processed = true
		}
		q.mu.Unlock()

		if dropped {
			onDrop(item)
		}
	}
}

// depth returns the total number of buffered items.
func (q *messageQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// unprocessed returns how many buffered items still await processing.
func (q *messageQueue) unprocessed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, item := range q.items {
		if !item.processed {
			n++
		}
	}
	return n
}
