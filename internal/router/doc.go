// Package router routes a submission to the primary or secondary payment
// processor.
//
// For every submission the router checks whether it was already recorded,
// asks the circuit breaker whether to try the primary, fails over to the
// secondary when the primary attempt fails and records the processor that
// accepted it. When both processors fail the submission is dropped.
package router
