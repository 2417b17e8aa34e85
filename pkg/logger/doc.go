// Package logger builds the application's structured logger on log/slog.
// Production gets JSON output, every other environment gets text. Each
// record carries the service name and environment.
package logger
