// Package lfsd provides the HTTP surface of a Git LFS server: batch
// transfer negotiation, optional proxied object transfers, and the
// file locking API.
package lfsd

import (
	"net/http"

	"github.com/gorilla/context"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/wzshiming/lfsd/pkg/lfs"
	"github.com/wzshiming/lfsd/pkg/locks"
	"github.com/wzshiming/lfsd/pkg/token"
)

const userKey = "USER"

// Handler handles the LFS endpoints. Proxy transfer routes are mounted
// only when a proxy backend is configured; lock routes are always
// mounted and answer 501 without a lock store.
type Handler struct {
	log    *zap.Logger
	codec  *token.Codec
	meta   lfs.MetaRequester
	signer lfs.LinkSigner
	proxy  lfs.Proxy
	locks  locks.Store

	shaped http.Handler
}

// Option customizes a Handler.
type Option func(*Handler)

// WithProxy mounts the object access routes backed by p.
func WithProxy(p lfs.Proxy) Option {
	return func(h *Handler) { h.proxy = p }
}

// WithLocks backs the lock routes with store.
func WithLocks(store locks.Store) Option {
	return func(h *Handler) { h.locks = store }
}

// NewHandler wires the routes for the given backends.
func NewHandler(log *zap.Logger, codec *token.Codec, meta lfs.MetaRequester, signer lfs.LinkSigner, opts ...Option) *Handler {
	h := &Handler{
		log:    log,
		codec:  codec,
		meta:   meta,
		signer: signer,
	}
	for _, opt := range opts {
		opt(h)
	}

	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiError(w, http.StatusNotFound, "")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiError(w, http.StatusMethodNotAllowed, "")
	})

	route(router, "/objects/batch", h.handleBatch, "POST")
	if h.proxy != nil {
		route(router, "/objects/access/{oid}", h.handleDownloadObject, "GET")
		route(router, "/objects/access/{oid}", h.handleUploadObject, "PUT")
	}
	route(router, "/locks", h.handleCreateLock, "POST")
	route(router, "/locks", h.handleListLocks, "GET")
	route(router, "/locks/verify", h.handleVerifyLocks, "POST")
	route(router, "/locks/{id}/unlock", h.handleDeleteLock, "POST")

	h.shaped = shapeErrors(log, context.ClearHandler(router))
	return h
}

// route registers both the plain and the trailing-slash form, since
// reverse proxies in front of the server produce either.
func route(router *mux.Router, path string, fn http.HandlerFunc, methods ...string) {
	router.HandleFunc(path, fn).Methods(methods...)
	router.HandleFunc(path+"/", fn).Methods(methods...)
}

// ServeHTTP implements the http.Handler interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.shaped.ServeHTTP(w, r)
}

// authorize validates the repo token against the repo query parameter
// and, when write is set, the token's access level. On success the
// user name is stashed on the request for the handlers to read.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, write bool) bool {
	claims, err := token.FromHeader(r.Header, h.codec)
	if err != nil {
		apiError(w, http.StatusUnauthorized, err.Error())
		return false
	}
	payload, err := token.RepoPayloadFrom(claims)
	if err != nil {
		apiError(w, http.StatusUnauthorized, err.Error())
		return false
	}

	if write && !payload.HasWriteAccess() {
		apiError(w, http.StatusForbidden, "You only have read access to this repository")
		return false
	}
	if !payload.HasAccess(r.URL.Query().Get("repo")) {
		apiError(w, http.StatusUnauthorized, "Unauthorized")
		return false
	}

	context.Set(r, userKey, payload.User)
	return true
}

func userFromRequest(r *http.Request) string {
	if user, ok := context.Get(r, userKey).(string); ok {
		return user
	}
	return ""
}
