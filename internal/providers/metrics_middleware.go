package providers

import (
	"net/http"
	"strings"
	"time"
)

// statusWriter remembers the response status. Unwrap keeps http.ResponseController
// able to flush and set deadlines on the underlying writer.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *statusWriter) streaming() bool {
	return strings.HasPrefix(w.Header().Get("Content-Type"), "text/event-stream")
}

// MetricsMiddleware counts every request by route pattern and status. Event streams
// are counted but kept out of the latency histogram since they live for minutes.
func MetricsMiddleware(metrics MetricsProviderInterface, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		endpoint := routeLabel(r)
		metrics.IncRequestsTotal(endpoint, sw.status)
		if !sw.streaming() {
			metrics.ObserveRequestDuration(endpoint, time.Since(start))
		}
	})
}

// routeLabel prefers the matched mux pattern so ids in the path stay out of the labels.
func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return "unmatched"
}
