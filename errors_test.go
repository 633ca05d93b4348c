package lfsd

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func shapedResponse(status int, body string) *httptest.ResponseRecorder {
	handler := shapeErrors(zap.NewNop(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiError(w, status, body)
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	return w
}

func TestShapeErrorsTable(t *testing.T) {
	for _, tt := range []struct {
		inbound  int
		inner    string
		status   int
		message  string
	}{
		{inbound: 401, inner: "Token expired", status: 401, message: "Unauthorized"},
		{inbound: 403, inner: "You only have read access to this repository", status: 403, message: "Missing write authorization"},
		{inbound: 404, inner: "", status: 404, message: "Not found"},
		{inbound: 400, inner: "", status: 422, message: "Invalid payload"},
		{inbound: 422, inner: "Invalid hash algo, only sha256 is supported", status: 422, message: "Invalid hash algo, only sha256 is supported"},
		{inbound: 406, inner: "", status: 406, message: "Bad Accept header, should be application/vnd.git-lfs+json"},
		{inbound: 413, inner: "", status: 413, message: "Payload too large, try to send less files at the time"},
		{inbound: 429, inner: "", status: 429, message: "Too many requests, try again later"},
		{inbound: 405, inner: "", status: 405, message: "Method not allowed, try GET or POST"},
		{inbound: 501, inner: "", status: 501, message: "Not implemented"},
		{inbound: 501, inner: "Only basic transfer is supported", status: 501, message: "Only basic transfer is supported"},
		{inbound: 507, inner: "", status: 507, message: "Insufficient storage"},
		{inbound: 500, inner: "disk exploded", status: 500, message: "Internal server error"},
		{inbound: 502, inner: "", status: 500, message: "Internal server error"},
	} {
		w := shapedResponse(tt.inbound, tt.inner)
		assert.Equal(t, tt.status, w.Code, "inbound %d", tt.inbound)
		assert.JSONEq(t, `{"message":"`+tt.message+`"}`, w.Body.String(), "inbound %d", tt.inbound)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	}
}

func TestShapeErrorsNeverLeaksServerDetail(t *testing.T) {
	w := shapedResponse(500, "password=hunter2 connection refused")
	assert.NotContains(t, w.Body.String(), "hunter2")
}

func TestShapeErrorsPassesSuccessThrough(t *testing.T) {
	handler := shapeErrors(zap.NewNop(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello"))
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", w.Body.String())
	assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
}

func TestShapeErrorsPassesConflictThrough(t *testing.T) {
	handler := shapeErrors(zap.NewNop(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "already created lock"})
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("POST", "/locks", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"message":"already created lock"}`, w.Body.String())
}

func TestShapeErrorsImplicitOK(t *testing.T) {
	// A handler that only writes a body gets the implicit 200 and is
	// left alone.
	handler := shapeErrors(zap.NewNop(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
