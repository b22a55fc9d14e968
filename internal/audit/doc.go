// Package audit implements async event dispatching for token lifecycle
// operations. Emission never blocks the hot path beyond a channel send;
// backpressure either drops (with a counter) or waits on the caller's
// context depending on configuration.
package audit
