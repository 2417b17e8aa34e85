// Package healthcheck implements periodic health probing of the primary
// payment processor. Each result updates the circuit breaker's health flag
// and is kept as the latest HealthSnapshot for diagnostics.
package healthcheck
