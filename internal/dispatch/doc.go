// Package dispatch decouples accepting a submission from routing it.
//
// The entry point enqueues onto a Queue and returns immediately. A Pool of
// workers, started by the process lifecycle, dequeues and passes each
// submission to a Handler. MemoryQueue is the in-process implementation;
// the broker package provides a RabbitMQ-backed one.
package dispatch
