// Package metrics exposes the gateway's operational counters through a
// dedicated Prometheus registry, served on /metrics.
package metrics
