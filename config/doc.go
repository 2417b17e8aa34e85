// Package config handles loading and parsing of configuration from YAML files,
// a .env file and environment variables. It defines the payment router's
// configuration: server settings, processor URLs, health check and circuit
// breaker timings, dispatch queue sizing, storage and broker connections.
package config
