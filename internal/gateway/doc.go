// Package gateway serves the gateway's own HTTP endpoints: the aggregate
// health report and the configured service listing.
package gateway
