package tracker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gatewaylabs/api-gateway/internal/metrics"
)

type contextKey struct{}

// Info is the per-request tracking record. Service is filled in by the
// dispatcher once the route is resolved; it stays empty for unmatched
// paths. The struct is only ever touched by the request's own goroutine.
type Info struct {
	RequestID string
	StartedAt time.Time
	Service   string
}

// NewContext attaches tracking info to a request context.
func NewContext(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, contextKey{}, info)
}

// FromContext returns the request's tracking info, or nil when the request
// did not pass through the tracker.
func FromContext(ctx context.Context) *Info {
	info, _ := ctx.Value(contextKey{}).(*Info)
	return info
}

// Tracker assigns correlation IDs to inbound requests and emits one
// structured record per completed request.
type Tracker struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	version string
}

func New(logger *slog.Logger, m *metrics.Metrics, version string) *Tracker {
	return &Tracker{
		logger:  logger,
		metrics: m,
		version: version,
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	wrote      bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.wrote {
		return
	}
	r.wrote = true
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wrote {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Middleware wraps a handler with correlation and timing. Every response
// carries X-Request-ID and X-Gateway-Version. Panics in the wrapped handler
// surface as a generic 500 with the correlation ID and never internal
// detail; the completion record is emitted regardless of outcome.
func (t *Tracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &Info{
			RequestID: uuid.NewString(),
			StartedAt: time.Now(),
		}

		w.Header().Set("X-Request-ID", info.RequestID)
		w.Header().Set("X-Gateway-Version", t.version)

		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					t.logger.Info("client aborted request",
						slog.String("request_id", info.RequestID),
						slog.String("path", r.URL.Path))
				} else {
					t.logger.Error("panic while handling request",
						slog.String("request_id", info.RequestID),
						slog.String("path", r.URL.Path),
						slog.Any("panic", p))
					t.writeInternalError(rec, info.RequestID)
				}
			}
			t.complete(r, info, rec.statusCode)
		}()

		next.ServeHTTP(rec, r.WithContext(NewContext(r.Context(), info)))
	})
}

func (t *Tracker) complete(r *http.Request, info *Info, statusCode int) {
	elapsed := time.Since(info.StartedAt)

	t.logger.Info("request completed",
		slog.String("request_id", info.RequestID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("service", info.Service),
		slog.Int("status", statusCode),
		slog.Int64("duration_ms", elapsed.Milliseconds()))

	if t.metrics != nil {
		t.metrics.ObserveRequest(info.Service, statusCode, elapsed)
	}
}

func (t *Tracker) writeInternalError(rec *statusRecorder, requestID string) {
	if rec.wrote {
		rec.statusCode = http.StatusInternalServerError
		return
	}

	rec.Header().Set("Content-Type", "application/json")
	rec.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(rec).Encode(map[string]string{
		"error":     "internal server error",
		"requestId": requestID,
	})
}
