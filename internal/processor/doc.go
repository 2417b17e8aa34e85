// Package processor implements the HTTP client for a downstream payment
// processor. The same client delivers payments and probes the processor's
// health endpoint.
package processor
