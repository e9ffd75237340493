// Package tracker tags every inbound request with a correlation ID and a
// start timestamp, and emits one structured log record per completed
// request. It is purely observational: a tracking failure never blocks or
// fails the request itself.
package tracker
