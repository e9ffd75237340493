package main

import (
	"net/http"

	"github.com/gatewaylabs/api-gateway/internal/gateway"
	"github.com/gatewaylabs/api-gateway/internal/metrics"
	"github.com/gatewaylabs/api-gateway/internal/proxy"
	"github.com/gatewaylabs/api-gateway/internal/tracker"
)

func setupRouter(tr *tracker.Tracker, gw *gateway.Handler, dispatcher *proxy.Dispatcher, m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/health", tr.Middleware(http.HandlerFunc(gw.Health)))
	mux.Handle("/services", tr.Middleware(http.HandlerFunc(gw.Services)))
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/", tr.Middleware(dispatcher))

	return mux
}
