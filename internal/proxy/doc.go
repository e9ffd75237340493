// Package proxy implements the gateway's dispatch pipeline: resolve the
// route, consult the circuit breaker, consult the health cache, forward the
// request with a bounded timeout, and record the outcome.
//
// Every backend-facing failure is translated into one of the gateway's
// error responses (404 no route, 503 circuit open or backend unhealthy,
// 502 transport failure); raw transport errors never reach the client.
package proxy
