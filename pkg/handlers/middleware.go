package handlers

import (
	"net/http"
	"strconv"

	"github.com/Rami2x/PlaylistLoop/pkg/metrics"
)

// statusRecorder captures the status code written by a handler so the
// metrics middleware can label the request counter with it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// CountRequests wraps a handler and increments the shared request counter,
// labelled with the route pattern and the response status.
func CountRequests(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.HTTPRequests.WithLabelValues(path, strconv.Itoa(rec.status)).Inc()
	})
}
