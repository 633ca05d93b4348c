package locks

import (
	"encoding/json"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLimit(t *testing.T) {
	for _, tt := range []struct {
		raw   string
		page  int
		fetch int
	}{
		{raw: "", page: 100, fetch: 100},
		{raw: "0", page: 0, fetch: 1},
		{raw: "1", page: 1, fetch: 1},
		{raw: "3", page: 3, fetch: 3},
		{raw: "1000", page: 1000, fetch: 1000},
		{raw: "2000", page: 1000, fetch: 1000},
	} {
		page, fetch, err := parseLimit(tt.raw)
		require.NoError(t, err, "limit %q", tt.raw)
		assert.Equal(t, tt.page, page, "page for limit %q", tt.raw)
		assert.Equal(t, tt.fetch, fetch, "fetch for limit %q", tt.raw)
	}

	for _, raw := range []string{"-1", "abc", "1.5", " 1"} {
		_, _, err := parseLimit(raw)
		assert.ErrorIs(t, err, ErrInvalidLimit, "limit %q", raw)
	}
}

func lockRange(first, last int) []Lock {
	locks := make([]Lock, 0, last-first+1)
	for id := first; id <= last; id++ {
		locks = append(locks, Lock{ID: strconv.Itoa(id)})
	}
	return locks
}

func TestPaginate(t *testing.T) {
	// Full fetch plus one extra row: page of 3, cursor on the 4th.
	next, page := paginate(lockRange(1, 4), 3)
	require.Len(t, page, 3)
	assert.Equal(t, "1", page[0].ID)
	assert.Equal(t, "3", page[2].ID)
	assert.Equal(t, "4", next)

	// Everything fits: no cursor.
	next, page = paginate(lockRange(1, 3), 3)
	assert.Len(t, page, 3)
	assert.Equal(t, "", next)

	// Zero page still reports where the data starts.
	next, page = paginate(lockRange(1, 2), 0)
	assert.Len(t, page, 0)
	assert.Equal(t, "2", next)

	next, page = paginate(nil, 0)
	assert.Len(t, page, 0)
	assert.Equal(t, "", next)

	// Multi-digit ids survive intact.
	next, page = paginate(lockRange(98, 108), 10)
	require.Len(t, page, 10)
	assert.Equal(t, "98", page[0].ID)
	assert.Equal(t, "107", page[9].ID)
	assert.Equal(t, "108", next)
}

func TestLockJSONShape(t *testing.T) {
	lockedAt := time.Date(2024, 5, 17, 9, 30, 0, 0, time.UTC)
	lock := Lock{
		ID:       "1",
		Path:     "a/b.bin",
		LockedAt: lockedAt,
		Owner:    Owner{Name: "user1"},
		RefName:  "refs/heads/main",
	}

	data, err := json.Marshal(lock)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"id":"1","path":"a/b.bin","locked_at":"2024-05-17T09:30:00Z","owner":{"name":"user1"}}`,
		string(data))
}
