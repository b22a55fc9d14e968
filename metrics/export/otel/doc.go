// Package otel exports engine metrics through the OpenTelemetry metric
// API using observable instruments, so collection cost is paid only at
// scrape time.
package otel
