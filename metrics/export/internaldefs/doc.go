// Package internaldefs holds the shared metric name table consumed by
// the exporter packages. It exists so the prometheus and otel exporters
// render identical metric names without importing each other.
package internaldefs
