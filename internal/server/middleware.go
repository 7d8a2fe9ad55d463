package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"form-relay/internal/common/logger"
	"form-relay/internal/common/observability"
)

const requestIDHeader = "X-Request-ID"

// requestID reuses a well-formed incoming X-Request-ID or assigns a UUID, and
// stores it where middleware.GetReqID finds it.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessLog attaches a request-scoped logger and a server span to the
// context and logs one line per request. It also feeds the per-route
// request metrics.
func accessLog(base logger.Logger, obs *observability.Observability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := middleware.GetReqID(r.Context())
			log := base.WithFields(map[string]interface{}{
				"requestId": reqID,
			})
			ctx, span := obs.StartSpan(r.Context(), r.Method+" "+r.URL.Path,
				attribute.String("http.request.method", r.Method),
				attribute.String("relay.request_id", reqID),
			)
			defer span.End()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(logger.ToContext(ctx, log)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			duration := time.Since(start)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			obs.RecordRequest(ctx, route, r.Method, status, duration)
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", status),
			)
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}

			fields := map[string]interface{}{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     status,
				"bytes":      ww.BytesWritten(),
				"durationMs": duration.Milliseconds(),
				"remoteIp":   r.RemoteAddr,
			}
			if sc := span.SpanContext(); sc.HasTraceID() {
				fields["traceId"] = sc.TraceID().String()
			}
			if status >= http.StatusInternalServerError {
				log.Warn("request completed", fields)
			} else {
				log.Info("request completed", fields)
			}
		})
	}
}

// postOnly applies mw to POST requests only.
func postOnly(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
