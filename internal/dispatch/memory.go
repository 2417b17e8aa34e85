package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/angeloszaimis/payment-router/internal/payment"
)

// MemoryQueue is a FIFO queue held in process memory. A capacity of zero
// means unbounded.
type MemoryQueue struct {
	mutex    sync.Mutex
	items    []payment.Submission
	capacity int
	overflow Overflow
	timeout  time.Duration
	closed   bool

	ready chan struct{}
	space chan struct{}
	done  chan struct{}

	onEvict func(payment.Submission)
}

type MemoryOption func(*MemoryQueue)

// WithCapacity bounds the queue and sets its overflow policy.
// enqueueTimeout limits how long OverflowBlock waits for room.
func WithCapacity(capacity int, overflow Overflow, enqueueTimeout time.Duration) MemoryOption {
	return func(q *MemoryQueue) {
		q.capacity = capacity
		q.overflow = overflow
		q.timeout = enqueueTimeout
	}
}

// WithEvictHook is called with every submission dropped by OverflowDropOldest.
func WithEvictHook(fn func(payment.Submission)) MemoryOption {
	return func(q *MemoryQueue) {
		q.onEvict = fn
	}
}

func NewMemoryQueue(opts ...MemoryOption) *MemoryQueue {
	q := &MemoryQueue{
		overflow: OverflowBlock,
		ready:    make(chan struct{}, 1),
		space:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *MemoryQueue) Enqueue(ctx context.Context, sub payment.Submission) error {
	var deadline <-chan time.Time

	for {
		q.mutex.Lock()
		if q.closed {
			q.mutex.Unlock()
			return ErrQueueClosed
		}

		if q.capacity == 0 || len(q.items) < q.capacity {
			q.items = append(q.items, sub)
			room := q.capacity > 0 && len(q.items) < q.capacity
			q.mutex.Unlock()
			signal(q.ready)
			// Pass the wakeup on to another blocked producer.
			if room {
				signal(q.space)
			}
			return nil
		}

		switch q.overflow {
		case OverflowReject:
			q.mutex.Unlock()
			return ErrQueueFull

		case OverflowDropOldest:
			evicted := q.items[0]
			q.items = append(q.items[1:], sub)
			q.mutex.Unlock()
			signal(q.ready)
			if q.onEvict != nil {
				q.onEvict(evicted)
			}
			return nil
		}
		q.mutex.Unlock()

		if deadline == nil && q.timeout > 0 {
			timer := time.NewTimer(q.timeout)
			defer timer.Stop()
			deadline = timer.C
		}

		select {
		case <-q.space:
		case <-deadline:
			return ErrQueueFull
		case <-q.done:
			return ErrQueueClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (payment.Submission, error) {
	for {
		q.mutex.Lock()
		if len(q.items) > 0 {
			sub := q.items[0]
			q.items[0] = payment.Submission{}
			q.items = q.items[1:]
			remaining := len(q.items)
			q.mutex.Unlock()

			signal(q.space)
			// Wake the next consumer while items remain.
			if remaining > 0 {
				signal(q.ready)
			}
			return sub, nil
		}
		closed := q.closed
		q.mutex.Unlock()

		if closed {
			return payment.Submission{}, ErrQueueClosed
		}

		select {
		case <-q.ready:
		case <-q.done:
		case <-ctx.Done():
			return payment.Submission{}, ctx.Err()
		}
	}
}

func (q *MemoryQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.items)
}

// Close stops accepting submissions. Pending ones stay available to Dequeue.
func (q *MemoryQueue) Close() error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
