package observability

import (
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware wraps an HTTP handler with a span and RED metrics per
// request. 5xx responses count as errors.
func (p *Provider) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attrs := []attribute.KeyValue{
			attribute.String("http.method", r.Method),
			attribute.String("http.route", r.URL.Path),
		}
		ctx, done := p.TrackOperation(r.Context(), r.Method+" "+r.URL.Path, attrs...)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		var err error
		if rec.status >= 500 {
			err = fmt.Errorf("http %d", rec.status)
		}
		done(err)
	})
}
