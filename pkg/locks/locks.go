// Package locks implements the Git LFS file locking API on top of a
// durable store. Two backends exist: PostgreSQL for shared deployments
// and an embedded Bolt database for single-node ones.
package locks

import (
	"context"
	"strconv"
	"time"

	monkit "github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
)

var mon = monkit.Package()

// Error classes partition backend failures by phase, so callers can
// log where in the conversation with the store things broke.
var (
	ErrConnection = errs.Class("lock store connection")
	ErrPrepare    = errs.Class("lock store prepare")
	ErrExecute    = errs.Class("lock store execute")
	ErrParse      = errs.Class("lock store parse")
)

// Sentinels the handlers translate into specific HTTP statuses.
var (
	ErrLockNotFound        = errs.New("lock not found")
	ErrForceDeleteRequired = errs.New("lock belongs to another user")
	ErrInvalidID           = errs.New("invalid lock id")
	ErrInvalidCursor       = errs.New("invalid cursor")
	ErrInvalidLimit        = errs.New("invalid limit")
	ErrLockAlreadyExists   = errs.New("lock already exists")
)

// Owner names the user holding a lock.
type Owner struct {
	Name string `json:"name"`
}

// Lock is one held path lock as the protocol serializes it. RefName is
// stored but never sent back to clients.
type Lock struct {
	ID       string    `json:"id"`
	Path     string    `json:"path"`
	LockedAt time.Time `json:"locked_at"`
	Owner    Owner     `json:"owner"`
	RefName  string    `json:"-"`
}

// Filter narrows a listing. All fields are optional; Cursor and Limit
// arrive as raw query strings and are validated by the store. The
// protocol's refspec parameter is accepted upstream but never filters.
type Filter struct {
	Path   string
	ID     string
	Cursor string
	Limit  string
}

// Store is the durable lock backend. Create is idempotent on
// (repo, path): re-locking an already locked path returns the existing
// lock with created=false. Delete refuses locks held by someone else
// unless force is set.
type Store interface {
	Create(ctx context.Context, repo, user, path, ref string) (lock *Lock, created bool, err error)
	List(ctx context.Context, repo string, filter Filter) (nextCursor string, locks []Lock, err error)
	Delete(ctx context.Context, repo, user, id, ref string, force bool) (*Lock, error)
	Close() error
}

const (
	defaultLimit = 100
	maxFetch     = 1000
)

// parseLimit splits the requested limit into the page size promised to
// the client and the fetch size used against the backend. The fetch
// size is clamped to [1, 1000] so a zero limit still looks ahead for a
// next cursor, while the page honors the smaller requested value.
func parseLimit(raw string) (page, fetch int, err error) {
	requested := defaultLimit
	if raw != "" {
		requested, err = strconv.Atoi(raw)
		if err != nil || requested < 0 {
			return 0, 0, ErrInvalidLimit
		}
	}

	fetch = requested
	if fetch < 1 {
		fetch = 1
	}
	if fetch > maxFetch {
		fetch = maxFetch
	}

	page = requested
	if page > fetch {
		page = fetch
	}
	return page, fetch, nil
}

// paginate cuts the fetched rows down to one page. Stores fetch one
// row beyond the fetch size; any surplus past the page means more data
// exists, and the cursor points at the last fetched row. Cursors are
// inclusive.
func paginate(rows []Lock, page int) (nextCursor string, out []Lock) {
	if len(rows) <= page {
		return "", rows
	}
	return rows[len(rows)-1].ID, rows[:page:page]
}

// lockedNow is the canonical lock timestamp: UTC at second precision,
// so every backend serializes the same RFC 3339 form.
func lockedNow() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
