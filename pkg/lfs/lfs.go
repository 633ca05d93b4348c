// Package lfs implements the object side of the Git LFS batch API:
// deciding per object whether a transfer can happen, which presigned
// action to hand out, and how the object bytes are stored.
package lfs

import (
	"context"
	"io"
	"net/http"
	"regexp"

	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var mon = monkit.Package()

// Error wraps storage and signing failures.
var Error = errs.Class("lfs")

// Operation is the transfer direction requested by the client. Wire
// form is lowercase.
type Operation string

const (
	Download Operation = "download"
	Upload   Operation = "upload"
)

// Valid reports whether the operation is one of the two the protocol
// defines.
func (op Operation) Valid() bool {
	return op == Download || op == Upload
}

// oidPattern is the path-traversal defense: any oid that could escape
// the per-repository objects directory is treated as nonexistent and
// never touches storage.
var oidPattern = regexp.MustCompile(`^[a-z0-9\-_]+\.[a-z0-9\-_]+$`)

// ObjectIdentity names one object in a batch request.
type ObjectIdentity struct {
	Oid  string `json:"oid"`
	Size uint32 `json:"size"`
}

// BatchRequest is the body of POST /objects/batch.
type BatchRequest struct {
	Operation string           `json:"operation"`
	Transfers []string         `json:"transfers,omitempty"`
	Objects   []ObjectIdentity `json:"objects"`
	HashAlgo  string           `json:"hash_algo"`
}

// ObjectAction is one presigned transfer the client may perform.
type ObjectAction struct {
	Href      string            `json:"href"`
	Header    map[string]string `json:"header,omitempty"`
	ExpiresIn uint              `json:"expires_in"`
}

// ObjectError is a per-object failure; it never fails the batch.
type ObjectError struct {
	Message string `json:"message"`
}

// ObjectRecord is the per-object outcome in a batch response: either a
// set of actions or an error.
type ObjectRecord struct {
	Oid     string                   `json:"oid"`
	Size    uint32                   `json:"size"`
	Actions map[string]*ObjectAction `json:"actions,omitempty"`
	Error   *ObjectError             `json:"error,omitempty"`
}

// BatchResponse is the body answered to POST /objects/batch.
type BatchResponse struct {
	Transfer string          `json:"transfer"`
	Objects  []*ObjectRecord `json:"objects"`
	HashAlgo string          `json:"hash_algo"`
}

// MetaResult reports whether an object exists in storage and how large
// it is. A missing object always has size zero.
type MetaResult struct {
	Repo   string
	Oid    string
	Exists bool
	Size   uint64
}

func found(repo, oid string, size uint64) *MetaResult {
	return &MetaResult{Repo: repo, Oid: oid, Exists: true, Size: size}
}

func notFound(repo, oid string) *MetaResult {
	return &MetaResult{Repo: repo, Oid: oid}
}

// MetaRequester reports object presence. Implementations translate
// every backend failure to a not-found result.
type MetaRequester interface {
	GetMetaResult(ctx context.Context, repo, oid string) *MetaResult
}

// LinkSigner produces the transfer actions of a batch response and
// verifies inbound proxy-mode links.
type LinkSigner interface {
	// GetPresignedLink returns the download action for an object.
	GetPresignedLink(ctx context.Context, meta *MetaResult) (*ObjectAction, error)
	// PostPresignedLink returns the upload action and, if the strategy
	// supports it, a verify action.
	PostPresignedLink(ctx context.Context, meta *MetaResult, size uint32) (upload, verify *ObjectAction, err error)
	// CheckLink reports whether the request headers authorize op on
	// (repo, oid). Strategies that delegate verification to the object
	// store always return false.
	CheckLink(ctx context.Context, repo, oid string, header http.Header, op Operation) bool
}

// Proxy moves object bytes through the server when it relays transfers
// itself instead of presigning object-store URLs. Transfers stream;
// object bytes are never buffered whole in memory. Callers own closing
// the body Get returns.
type Proxy interface {
	Get(ctx context.Context, repo, oid string) (body io.ReadCloser, contentType string, err error)
	Post(ctx context.Context, repo, oid string, body io.Reader, contentType string) error
}
