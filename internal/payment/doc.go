// Package payment holds the value types shared by the routing pipeline:
// submissions, processed records, processor tags and summaries.
package payment
