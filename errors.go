package lfsd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type apiMessage struct {
	Message string `json:"message"`
}

// shapedStatuses are the statuses the error middleware rewrites to the
// canonical protocol messages. Anything else below 500, notably the
// 409 of a duplicate lock, passes through with the handler's own body.
var shapedStatuses = map[int]bool{
	http.StatusBadRequest:            true,
	http.StatusUnauthorized:          true,
	http.StatusForbidden:             true,
	http.StatusNotFound:              true,
	http.StatusMethodNotAllowed:      true,
	http.StatusNotAcceptable:         true,
	http.StatusRequestEntityTooLarge: true,
	http.StatusUnprocessableEntity:   true,
	http.StatusTooManyRequests:       true,
}

func shaped(status int) bool {
	return status >= 500 || shapedStatuses[status]
}

// errorRecorder buffers any response the middleware will rewrite. The
// handler's body is kept as the inner message for logging and, where
// the table allows, for the client.
type errorRecorder struct {
	http.ResponseWriter

	status      int
	inner       bytes.Buffer
	intercepted bool
	wroteHeader bool
}

func (rec *errorRecorder) WriteHeader(status int) {
	if rec.wroteHeader {
		return
	}
	rec.wroteHeader = true
	if shaped(status) {
		rec.intercepted = true
		rec.status = status
		return
	}
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *errorRecorder) Write(p []byte) (int, error) {
	if !rec.wroteHeader {
		rec.WriteHeader(http.StatusOK)
	}
	if rec.intercepted {
		return rec.inner.Write(p)
	}
	return rec.ResponseWriter.Write(p)
}

// shape maps the intercepted status to the outgoing status and client
// message. Inner text survives only where the protocol allows it.
func (rec *errorRecorder) shape() (int, string) {
	inner := strings.TrimSpace(rec.inner.String())
	innerOr := func(fallback string) string {
		if inner != "" {
			return inner
		}
		return fallback
	}

	switch rec.status {
	case http.StatusUnauthorized:
		return http.StatusUnauthorized, "Unauthorized"
	case http.StatusForbidden:
		return http.StatusForbidden, "Missing write authorization"
	case http.StatusNotFound:
		return http.StatusNotFound, "Not found"
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return http.StatusUnprocessableEntity, innerOr("Invalid payload")
	case http.StatusNotAcceptable:
		return http.StatusNotAcceptable, "Bad Accept header, should be application/vnd.git-lfs+json"
	case http.StatusRequestEntityTooLarge:
		return http.StatusRequestEntityTooLarge, "Payload too large, try to send less files at the time"
	case http.StatusTooManyRequests:
		return http.StatusTooManyRequests, "Too many requests, try again later"
	case http.StatusMethodNotAllowed:
		return http.StatusMethodNotAllowed, "Method not allowed, try GET or POST"
	case http.StatusNotImplemented:
		return http.StatusNotImplemented, innerOr("Not implemented")
	case http.StatusInsufficientStorage:
		return http.StatusInsufficientStorage, "Insufficient storage"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func (rec *errorRecorder) finish(log *zap.Logger, r *http.Request) {
	if !rec.intercepted {
		return
	}

	status, message := rec.shape()
	inner := strings.TrimSpace(rec.inner.String())

	fields := []zap.Field{
		zap.Int("status", status),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("detail", inner),
	}
	if status >= 500 {
		log.Error("request failed", fields...)
	} else {
		log.Warn("request rejected", fields...)
	}

	header := rec.ResponseWriter.Header()
	header.Set("Content-Type", "application/json")
	header.Del("Content-Length")
	rec.ResponseWriter.WriteHeader(status)
	_ = json.NewEncoder(rec.ResponseWriter).Encode(apiMessage{Message: message})
}

// shapeErrors normalizes every error response to the protocol's
// {"message": ...} form, logging the full inner detail.
func shapeErrors(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &errorRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		rec.finish(log, r)
	})
}

// apiError emits status with an inner detail message for the shaping
// middleware to pick up.
func apiError(w http.ResponseWriter, status int, detail string) {
	w.WriteHeader(status)
	if detail != "" {
		_, _ = w.Write([]byte(detail))
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
