// Package summary reports per-processor payment volume.
package summary
