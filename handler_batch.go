package lfsd

import (
	"encoding/json"
	"net/http"

	"github.com/wzshiming/lfsd/pkg/lfs"
	"github.com/wzshiming/lfsd/pkg/token"
)

// handleBatch implements the batch transfer negotiation. Validation
// order matters: authentication first, then payload shape, then the
// access level, then repo scope, then the protocol parameters.
func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	claims, err := token.FromHeader(r.Header, h.codec)
	if err != nil {
		apiError(w, http.StatusUnauthorized, err.Error())
		return
	}
	payload, err := token.RepoPayloadFrom(claims)
	if err != nil {
		apiError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req lfs.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiError(w, http.StatusBadRequest, "")
		return
	}

	op := lfs.Operation(req.Operation)
	if !op.Valid() {
		apiError(w, http.StatusUnprocessableEntity, "")
		return
	}

	if op == lfs.Upload && !payload.HasWriteAccess() {
		apiError(w, http.StatusForbidden, "You only have read access to this repository")
		return
	}

	repo := r.URL.Query().Get("repo")
	if !payload.HasAccess(repo) {
		apiError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if req.HashAlgo != "" && req.HashAlgo != "sha256" {
		apiError(w, http.StatusUnprocessableEntity, "Invalid hash algo, only sha256 is supported")
		return
	}
	if !acceptsBasicTransfer(req.Transfers) {
		apiError(w, http.StatusNotImplemented, "Only basic transfer is supported")
		return
	}

	resp := lfs.Batch(r.Context(), h.meta, h.signer, repo, op, req.Objects)
	writeJSON(w, http.StatusOK, resp)
}

// acceptsBasicTransfer reports whether the client can do a basic
// transfer. An absent transfers list means basic per the protocol.
func acceptsBasicTransfer(transfers []string) bool {
	if transfers == nil {
		return true
	}
	for _, transfer := range transfers {
		if transfer == "basic" {
			return true
		}
	}
	return false
}
