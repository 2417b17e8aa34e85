// Package circuitbreaker decides whether the primary payment processor
// should receive the next delivery.
//
// The breaker has three states:
//
//   - CLOSED: primary used unless the health monitor reports it failing
//   - OPEN: primary skipped until the reset timeout elapses
//   - HALF-OPEN: a single trial request tests whether the primary recovered
//
// All transitions are computed by Transition, a pure function of the current
// Status, an Event and the time. Breaker serialises calls to it.
//
// Usage:
//
//	cb := circuitbreaker.New(circuitbreaker.DefaultPolicy())
//	if cb.ShouldUsePrimary() {
//	    if err := primary.Deliver(ctx, sub); err != nil {
//	        cb.RecordFailure()
//	    } else {
//	        cb.RecordSuccess()
//	    }
//	}
package circuitbreaker
