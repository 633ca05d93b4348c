// Package http runs the LFS HTTP server: request logging and the
// listener lifecycle.
package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/felixge/httpsnoop"
	"go.uber.org/zap"
)

// LoggingMiddleware logs every request with its outcome. It should be
// the outermost middleware so the measured duration covers the whole
// chain.
func LoggingMiddleware(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := r.RemoteAddr
		if colon := strings.LastIndex(addr, ":"); colon != -1 {
			addr = addr[:colon]
		}

		metrics := httpsnoop.CaptureMetrics(next, w, r)

		log.Info("request",
			zap.String("addr", addr),
			zap.String("method", r.Method),
			zap.String("uri", r.RequestURI),
			zap.Int("status", metrics.Code),
			zap.Int64("bytes", metrics.Written),
			zap.Duration("duration", metrics.Duration.Round(time.Microsecond)),
		)
	})
}
