package lfsd

import (
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"github.com/wzshiming/lfsd/pkg/lfs"
)

// handleDownloadObject serves proxied object downloads. Access is
// granted by the link token minted at batch time, not by the repo
// token.
func (h *Handler) handleDownloadObject(w http.ResponseWriter, r *http.Request) {
	repo := r.URL.Query().Get("repo")
	oid := mux.Vars(r)["oid"]

	if !h.signer.CheckLink(r.Context(), repo, oid, r.Header, lfs.Download) {
		apiError(w, http.StatusUnauthorized, "Link verification failed")
		return
	}

	body, contentType, err := h.proxy.Get(r.Context(), repo, oid)
	if errors.Is(err, os.ErrNotExist) {
		apiError(w, http.StatusNotFound, "")
		return
	}
	if err != nil {
		apiError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer func() { _ = body.Close() }()

	w.Header().Set("Content-Type", contentType)
	_, _ = io.Copy(w, body)
}

// handleUploadObject accepts proxied object uploads, remembering the
// declared content type for the later download.
func (h *Handler) handleUploadObject(w http.ResponseWriter, r *http.Request) {
	repo := r.URL.Query().Get("repo")
	oid := mux.Vars(r)["oid"]

	if !h.signer.CheckLink(r.Context(), repo, oid, r.Header, lfs.Upload) {
		apiError(w, http.StatusUnauthorized, "Link verification failed")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// The request body streams straight into storage.
	if err := h.proxy.Post(r.Context(), repo, oid, r.Body, contentType); err != nil {
		apiError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
}
