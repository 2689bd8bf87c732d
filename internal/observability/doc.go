// Package observability records what the browser does. Events are appended
// to a JSON Lines log, aggregated on demand into usage metrics, checked
// against alert thresholds, and mirrored into Prometheus collectors.
package observability
