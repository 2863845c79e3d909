package metrics

import (
	"net/http"
	"time"
)

// HTTPMetricsMiddleware instruments a handler, recording one count and one
// latency observation per request under the given route label. The route must
// be a fixed string such as "/api/v1/analyses", never the raw request path,
// so wallet addresses do not explode label cardinality.
func HTTPMetricsMiddleware(m *Metrics, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if m != nil {
				m.RecordHTTPRequest(route, r.Method, rec.status, time.Since(start).Seconds())
			}
		})
	}
}

// statusRecorder captures the response status for the metrics label.
// Handlers that never call WriteHeader report 200.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
