// Package handler implements the payment router's HTTP API. It validates
// and enqueues submissions, answers summary and purge requests, and exposes
// a diagnostics view of the breaker, the health monitor and the queue.
package handler
