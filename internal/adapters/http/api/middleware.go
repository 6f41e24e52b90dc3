package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/padeliq/pkg/logger"
	"github.com/okian/padeliq/pkg/metrics"
)

// Instrument wraps a handler with request metrics and an access log line.
// Error responses are counted under the error code the handler wrote, or a
// status class when the handler never went through writeError.
func Instrument(log logger.Logger, endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		status := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, float64(elapsed.Milliseconds()))

		if rec.status < http.StatusBadRequest {
			log.Debug(r.Context(), "request served",
				logger.String("endpoint", endpoint),
				logger.String("method", r.Method),
				logger.Int("status", rec.status),
				logger.Duration("elapsed", elapsed))
			return
		}
		code := rec.code
		if code == "" {
			code = statusClass(rec.status)
		}
		metrics.RecordErrorByEndpoint(endpoint, r.Method, code)
		log.Info(r.Context(), "request failed",
			logger.String("endpoint", endpoint),
			logger.String("method", r.Method),
			logger.Int("status", rec.status),
			logger.String("code", code),
			logger.Duration("elapsed", elapsed))
	}
}

func statusClass(status int) string {
	switch {
	case status == http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case status >= http.StatusInternalServerError:
		return "server_error"
	default:
		return "client_error"
	}
}

// statusRecorder captures the status and the error code of a response.
type statusRecorder struct {
	http.ResponseWriter
	status int
	code   string
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// tagError remembers code on w when w is instrumented.
func tagError(w http.ResponseWriter, code string) {
	if r, ok := w.(*statusRecorder); ok {
		r.code = code
	}
}
