package lfsd

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wzshiming/lfsd/pkg/locks"
)

const lockAPIUnavailable = "The lock api is not implemented on this server"

// Ref names the branch a lock request applies to.
type Ref struct {
	Name string `json:"name"`
}

func (ref *Ref) name() string {
	if ref == nil {
		return ""
	}
	return ref.Name
}

// CreateLockPayload is the body of POST /locks.
type CreateLockPayload struct {
	Path string `json:"path"`
	Ref  *Ref   `json:"ref,omitempty"`
}

// DeleteLockPayload is the body of POST /locks/{id}/unlock.
type DeleteLockPayload struct {
	Force bool `json:"force,omitempty"`
	Ref   *Ref `json:"ref,omitempty"`
}

// VerifyLocksPayload is the body of POST /locks/verify.
type VerifyLocksPayload struct {
	Cursor string `json:"cursor,omitempty"`
	Limit  string `json:"limit,omitempty"`
	Ref    *Ref   `json:"ref,omitempty"`
}

type createLockResponse struct {
	Lock    *locks.Lock `json:"lock"`
	Message string      `json:"message,omitempty"`
}

type listLocksResponse struct {
	Locks      []locks.Lock `json:"locks"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type verifyLocksResponse struct {
	Ours       []locks.Lock `json:"ours"`
	Theirs     []locks.Lock `json:"theirs"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type deleteLockResponse struct {
	Lock *locks.Lock `json:"lock"`
}

// decodeLenient decodes a JSON body, treating an empty body as the
// zero payload. git-lfs omits the body on some lock requests.
func decodeLenient(r *http.Request, into interface{}) error {
	err := json.NewDecoder(r.Body).Decode(into)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// lockError translates store errors into statuses for the shaping
// middleware.
func lockError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, locks.ErrLockNotFound):
		apiError(w, http.StatusNotFound, "")
	case errors.Is(err, locks.ErrForceDeleteRequired):
		apiError(w, http.StatusForbidden, "")
	case errors.Is(err, locks.ErrInvalidID):
		apiError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, locks.ErrInvalidCursor), errors.Is(err, locks.ErrInvalidLimit):
		apiError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		apiError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) handleCreateLock(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, true) {
		return
	}
	if h.locks == nil {
		apiError(w, http.StatusNotImplemented, lockAPIUnavailable)
		return
	}

	var req CreateLockPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		apiError(w, http.StatusBadRequest, "")
		return
	}

	repo := r.URL.Query().Get("repo")
	lock, created, err := h.locks.Create(r.Context(), repo, userFromRequest(r), req.Path, req.Ref.name())
	if err != nil {
		lockError(w, err)
		return
	}
	if !created {
		// 409 passes the shaping middleware untouched, the client needs
		// the existing lock's body.
		writeJSON(w, http.StatusConflict, createLockResponse{Lock: lock, Message: "already created lock"})
		return
	}
	writeJSON(w, http.StatusCreated, createLockResponse{Lock: lock})
}

func (h *Handler) handleListLocks(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, false) {
		return
	}
	if h.locks == nil {
		apiError(w, http.StatusNotImplemented, lockAPIUnavailable)
		return
	}

	// The refspec parameter is accepted but never filters, per the
	// locking protocol's guidance.
	query := r.URL.Query()
	next, page, err := h.locks.List(r.Context(), query.Get("repo"), locks.Filter{
		Path:   query.Get("path"),
		ID:     query.Get("id"),
		Cursor: query.Get("cursor"),
		Limit:  query.Get("limit"),
	})
	if err != nil {
		lockError(w, err)
		return
	}
	if page == nil {
		page = []locks.Lock{}
	}
	writeJSON(w, http.StatusOK, listLocksResponse{Locks: page, NextCursor: next})
}

func (h *Handler) handleVerifyLocks(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, false) {
		return
	}
	if h.locks == nil {
		apiError(w, http.StatusNotImplemented, lockAPIUnavailable)
		return
	}

	var req VerifyLocksPayload
	if err := decodeLenient(r, &req); err != nil {
		apiError(w, http.StatusBadRequest, "")
		return
	}

	repo := r.URL.Query().Get("repo")
	next, page, err := h.locks.List(r.Context(), repo, locks.Filter{
		Cursor: req.Cursor,
		Limit:  req.Limit,
	})
	if err != nil {
		lockError(w, err)
		return
	}

	user := userFromRequest(r)
	resp := verifyLocksResponse{
		Ours:       []locks.Lock{},
		Theirs:     []locks.Lock{},
		NextCursor: next,
	}
	for _, lock := range page {
		if lock.Owner.Name == user {
			resp.Ours = append(resp.Ours, lock)
		} else {
			resp.Theirs = append(resp.Theirs, lock)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDeleteLock(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r, true) {
		return
	}
	if h.locks == nil {
		apiError(w, http.StatusNotImplemented, lockAPIUnavailable)
		return
	}

	var req DeleteLockPayload
	if err := decodeLenient(r, &req); err != nil {
		apiError(w, http.StatusBadRequest, "")
		return
	}

	repo := r.URL.Query().Get("repo")
	id := mux.Vars(r)["id"]
	lock, err := h.locks.Delete(r.Context(), repo, userFromRequest(r), id, req.Ref.name(), req.Force)
	if err != nil {
		lockError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteLockResponse{Lock: lock})
}
