package circuitbreaker

import (
	"sync"
	"time"
)

// Breaker decides whether the primary processor should be tried.
// It is safe for concurrent use.
type Breaker struct {
	mutex    sync.Mutex
	status   Status
	policy   Policy
	now      func() time.Time
	onChange func(from, to State)
}

type Option func(*Breaker)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.now = now
	}
}

// WithStateChange registers a callback invoked after every state change.
// It runs outside the breaker lock.
func WithStateChange(fn func(from, to State)) Option {
	return func(b *Breaker) {
		b.onChange = fn
	}
}

func New(policy Policy, opts ...Option) *Breaker {
	b := &Breaker{
		policy: policy,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ShouldUsePrimary reports whether the next delivery should go to the primary.
// It may move an expired OPEN breaker to HALF-OPEN.
func (b *Breaker) ShouldUsePrimary() bool {
	return b.apply(EventAllow)
}

func (b *Breaker) RecordFailure() {
	b.apply(EventFailure)
}

func (b *Breaker) RecordSuccess() {
	b.apply(EventSuccess)
}

// UpdateHealth stores the latest health probe result.
func (b *Breaker) UpdateHealth(failing bool) {
	if failing {
		b.apply(EventHealthFailing)
		return
	}
	b.apply(EventHealthPassing)
}

func (b *Breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.status.State
}

// Snapshot returns a copy of the current status.
func (b *Breaker) Snapshot() Status {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.status
}

func (b *Breaker) Policy() Policy {
	return b.policy
}

func (b *Breaker) apply(ev Event) bool {
	b.mutex.Lock()
	from := b.status.State
	next, allowed := Transition(b.status, ev, b.now(), b.policy)
	b.status = next
	b.mutex.Unlock()

	if b.onChange != nil && from != next.State {
		b.onChange(from, next.State)
	}

	return allowed
}
