package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"lawdesk/internal/platform/metrics"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Observe logs each request and feeds the HTTP metrics. route is the
// router pattern.
func Observe(route string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next(rec, r)

			elapsed := time.Since(start)
			metrics.ObserveRequest(r.Method, route, rec.status, elapsed)

			event := log.Debug()
			if rec.status >= 500 {
				event = log.Error()
			}
			event.Str("method", r.Method).
				Str("route", route).
				Int("status", rec.status).
				Dur("elapsed", elapsed).
				Msg("request")
		}
	}
}
