package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/angeloszaimis/payment-router/internal/payment"
)

var (
	ErrQueueFull   = errors.New("dispatch queue full")
	ErrQueueClosed = errors.New("dispatch queue closed")
)

const (
	DriverMemory = "memory"
	DriverAMQP   = "amqp"
)

// Queue hands submissions from the entry point to the workers.
type Queue interface {
	// Enqueue adds sub or fails with ErrQueueFull or ErrQueueClosed.
	Enqueue(ctx context.Context, sub payment.Submission) error
	// Dequeue blocks until a submission is available. After Close an
	// in-process queue keeps returning pending submissions and then
	// ErrQueueClosed. A broker-backed queue returns ErrQueueClosed at once
	// and leaves pending submissions in the broker for the next consumer.
	Dequeue(ctx context.Context) (payment.Submission, error)
	Len() int
	Close() error
}

// Overflow is what a bounded queue does when full.
type Overflow string

const (
	OverflowBlock      Overflow = "block"
	OverflowReject     Overflow = "reject"
	OverflowDropOldest Overflow = "drop-oldest"
)

func ParseOverflow(s string) (Overflow, error) {
	switch o := Overflow(s); o {
	case OverflowBlock, OverflowReject, OverflowDropOldest:
		return o, nil
	case "":
		return OverflowBlock, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", s)
	}
}
