// Package prometheus renders engine metrics in Prometheus text
// exposition format without depending on the Prometheus client library.
// Mount [Exporter.Handler] on a scrape endpoint.
package prometheus
