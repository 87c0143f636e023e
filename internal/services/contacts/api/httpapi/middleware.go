package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/walletbook/walletbook/internal/platform/requestctx"
)

// tracerName identifies spans opened by the contacts HTTP surface.
const tracerName = "walletbook/contacts/httpapi"

// statusRecorder captures the status code a handler writes.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// observe wraps a route handler with a request span and a request log line.
// The span is named after the route pattern so path parameters do not explode
// span cardinality.
func (s *Server) observe(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := otel.Tracer(tracerName).Start(r.Context(), route)
		defer span.End()
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("url.path", r.URL.Path),
		)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", rec.status))
		s.logger.Printf("%s %s status=%d duration=%s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	}
}

// annotateCaller records the authenticated caller stored in the context on
// the active request span.
func annotateCaller(ctx context.Context) {
	caller, ok := requestctx.CallerFromContext(ctx)
	if !ok {
		return
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("caller.address", strings.ToLower(caller.Hex())),
	)
}
