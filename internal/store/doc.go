// Package store persists processed payments behind the Gateway interface.
//
// Three drivers are available: an in-memory map (default), PostgreSQL via
// pgxpool and Redis. Every driver enforces one record per correlation id and
// reports a duplicate insert as ErrConflict.
package store
