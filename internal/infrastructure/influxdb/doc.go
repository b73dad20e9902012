// Package influxdb provides time-series storage for factory events.
//
// It wraps the official influxdb-client-go v2 library with the
// connection management and non-blocking batched write patterns the
// rest of the core uses. Three measurements are written: order_events
// for lifecycle transitions, intake for classified inbound traffic,
// and dispatch for outbound module commands.
//
// The integration is optional; when disabled in configuration Connect
// returns ErrDisabled and callers run without metrics.
package influxdb
