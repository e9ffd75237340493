package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gatewaylabs/api-gateway/internal/circuitbreaker"
	"github.com/gatewaylabs/api-gateway/internal/healthcache"
	"github.com/gatewaylabs/api-gateway/internal/metrics"
	"github.com/gatewaylabs/api-gateway/internal/registry"
	"github.com/gatewaylabs/api-gateway/internal/tracker"
)

// Dispatcher routes inbound requests to backend services. Per request it
// resolves the route, consults the circuit breaker and the health cache,
// forwards with a bounded timeout, and records the outcome. The breaker
// registry and health cache are the only shared mutable state it touches.
type Dispatcher struct {
	logger       *slog.Logger
	registry     *registry.Registry
	breakers     *circuitbreaker.Registry
	health       *healthcache.Cache
	metrics      *metrics.Metrics
	proxyTimeout time.Duration
	cooldown     time.Duration
}

func NewDispatcher(
	logger *slog.Logger,
	reg *registry.Registry,
	breakers *circuitbreaker.Registry,
	health *healthcache.Cache,
	m *metrics.Metrics,
	proxyTimeout time.Duration,
	cooldown time.Duration,
) *Dispatcher {
	d := &Dispatcher{
		logger:       logger,
		registry:     reg,
		breakers:     breakers,
		health:       health,
		metrics:      m,
		proxyTimeout: proxyTimeout,
		cooldown:     cooldown,
	}

	for _, route := range reg.Routes() {
		route.ReverseProxy().ErrorHandler = d.recordProxyError
	}

	return d
}

// dispatchState carries the transport error out of the reverse proxy's
// ErrorHandler back to the dispatch that owns the request.
type dispatchState struct {
	transportErr error
}

type dispatchStateKey struct{}

func (d *Dispatcher) recordProxyError(w http.ResponseWriter, r *http.Request, err error) {
	if st, ok := r.Context().Value(dispatchStateKey{}).(*dispatchState); ok {
		st.transportErr = err
	}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route, ok := d.registry.MatchPath(r.URL.Path)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"error":             "route not found",
			"path":              r.URL.Path,
			"availableServices": d.registry.Names(),
		})
		return
	}

	info := tracker.FromContext(r.Context())
	if info != nil {
		info.Service = route.Name()
	}

	cb := d.breakers.GetBreaker(route.Name())
	allowed, isTrial := cb.Allow()
	if !allowed {
		d.publishBreakerState(route.Name(), cb)
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(d.cooldown.Seconds())))
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"error":      "service unavailable",
			"service":    route.Name(),
			"path":       r.URL.Path,
			"retryAfter": int(d.cooldown.Seconds()),
		})
		return
	}

	if !d.health.IsHealthy(route) {
		if isTrial {
			cb.CancelTrial()
		}
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"error":   "service unhealthy",
			"service": route.Name(),
			"path":    r.URL.Path,
		})
		return
	}

	d.forward(w, r, route, cb, info, isTrial)
	d.publishBreakerState(route.Name(), cb)
}

func (d *Dispatcher) forward(
	w http.ResponseWriter,
	r *http.Request,
	route *registry.Route,
	cb *circuitbreaker.Breaker,
	info *tracker.Info,
	isTrial bool,
) {
	ctx, cancel := context.WithTimeout(r.Context(), d.proxyTimeout)
	defer cancel()

	st := &dispatchState{}
	ctx = context.WithValue(ctx, dispatchStateKey{}, st)

	rec := &proxyRecorder{
		ResponseWriter: w,
		service:        route.Name(),
		start:          time.Now(),
		statusCode:     http.StatusOK,
	}

	route.ReverseProxy().ServeHTTP(rec, r.WithContext(ctx))

	if st.transportErr != nil {
		d.handleTransportFailure(rec, r, route, cb, info, isTrial, st.transportErr)
		return
	}

	// Any status below 500, including 4xx, proves the backend is reachable
	// and processing requests; only 5xx counts against the breaker.
	if rec.statusCode >= http.StatusInternalServerError {
		cb.RecordFailure()
	} else {
		cb.RecordSuccess(isTrial)
	}
}

// statusClientClosedRequest marks requests the client abandoned mid-proxy,
// in the completion log. Same convention nginx uses.
const statusClientClosedRequest = 499

func (d *Dispatcher) handleTransportFailure(
	rec *proxyRecorder,
	r *http.Request,
	route *registry.Route,
	cb *circuitbreaker.Breaker,
	info *tracker.Info,
	isTrial bool,
	transportErr error,
) {
	requestID := ""
	if info != nil {
		requestID = info.RequestID
	}

	// A client that walked away is not a backend health signal. The trial
	// slot still has to be released, or a half-open breaker would wait
	// forever for an outcome that is never coming.
	if r.Context().Err() != nil {
		if isTrial {
			cb.CancelTrial()
		}
		if !rec.wrote {
			rec.WriteHeader(statusClientClosedRequest)
		}
		d.logger.Debug("client disconnected during proxy",
			slog.String("service", route.Name()),
			slog.String("request_id", requestID))
		return
	}

	cb.RecordFailure()

	d.logger.Warn("proxy transport failure",
		slog.String("service", route.Name()),
		slog.String("request_id", requestID),
		slog.String("error", transportErr.Error()))

	if rec.wrote {
		return
	}

	writeJSON(rec.ResponseWriter, http.StatusBadGateway, map[string]interface{}{
		"error":     "bad gateway",
		"service":   route.Name(),
		"requestId": requestID,
	})
	rec.statusCode = http.StatusBadGateway
	rec.wrote = true
}

func (d *Dispatcher) publishBreakerState(service string, cb *circuitbreaker.Breaker) {
	if d.metrics != nil {
		d.metrics.SetBreakerState(service, int(cb.State()))
	}
}

// proxyRecorder annotates proxied responses with the owning service and the
// backend response time just before headers are flushed to the client.
type proxyRecorder struct {
	http.ResponseWriter
	service    string
	start      time.Time
	statusCode int
	wrote      bool
}

func (pr *proxyRecorder) WriteHeader(code int) {
	if pr.wrote {
		return
	}
	pr.wrote = true
	pr.statusCode = code
	pr.Header().Set("X-Service-Name", pr.service)
	pr.Header().Set("X-Service-Response-Time", fmt.Sprintf("%dms", time.Since(pr.start).Milliseconds()))
	pr.ResponseWriter.WriteHeader(code)
}

func (pr *proxyRecorder) Write(b []byte) (int, error) {
	if !pr.wrote {
		pr.WriteHeader(http.StatusOK)
	}
	return pr.ResponseWriter.Write(b)
}

func (pr *proxyRecorder) Unwrap() http.ResponseWriter {
	return pr.ResponseWriter
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
