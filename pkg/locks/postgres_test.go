package locks

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestPostgres connects to the database named by the DATABASE_*
// environment and isolates the run in a unique repo name. Without
// DATABASE_HOST the test is skipped.
func openTestPostgres(t *testing.T) (*Postgres, string) {
	t.Helper()

	host := os.Getenv("DATABASE_HOST")
	if host == "" {
		t.Skip("DATABASE_HOST not set")
	}

	store, err := OpenPostgres(context.Background(), PostgresConfig{
		Host:     host,
		Database: os.Getenv("DATABASE_NAME"),
		User:     os.Getenv("DATABASE_USER"),
		Password: os.Getenv("DATABASE_PASSWORD"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	repo := fmt.Sprintf("test-%s-%d", t.Name(), time.Now().UnixNano())
	return store, repo
}

func TestPostgresCreateAndRelock(t *testing.T) {
	ctx := context.Background()
	store, repo := openTestPostgres(t)

	lock, created, err := store.Create(ctx, repo, "user1", "a.bin", "refs/heads/main")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "user1", lock.Owner.Name)
	assert.Zero(t, lock.LockedAt.Nanosecond())

	again, created, err := store.Create(ctx, repo, "user2", "a.bin", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, lock.ID, again.ID)
	assert.Equal(t, "user1", again.Owner.Name)
}

func TestPostgresDelete(t *testing.T) {
	ctx := context.Background()
	store, repo := openTestPostgres(t)

	lock, _, err := store.Create(ctx, repo, "user1", "a.bin", "")
	require.NoError(t, err)

	_, err = store.Delete(ctx, repo, "user2", lock.ID, "", false)
	assert.ErrorIs(t, err, ErrForceDeleteRequired)

	deleted, err := store.Delete(ctx, repo, "user2", lock.ID, "", true)
	require.NoError(t, err)
	assert.Equal(t, lock.ID, deleted.ID)

	_, err = store.Delete(ctx, repo, "user1", lock.ID, "", false)
	assert.ErrorIs(t, err, ErrLockNotFound)

	_, err = store.Delete(ctx, repo, "user1", "not-a-number", "", false)
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestPostgresListPagination(t *testing.T) {
	ctx := context.Background()
	store, repo := openTestPostgres(t)

	ids := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		lock, created, err := store.Create(ctx, repo, "user1", fmt.Sprintf("file%d.bin", i), "")
		require.NoError(t, err)
		require.True(t, created)
		ids = append(ids, lock.ID)
	}

	next, page, err := store.List(ctx, repo, Filter{Limit: "3"})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, ids[0], page[0].ID)
	assert.Equal(t, ids[3], next)

	next, page, err = store.List(ctx, repo, Filter{Cursor: next, Limit: "3"})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[3], page[0].ID)
	assert.Equal(t, "", next)

	_, page, err = store.List(ctx, repo, Filter{Path: "file2.bin"})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[2], page[0].ID)

	_, _, err = store.List(ctx, repo, Filter{Limit: "oops"})
	assert.ErrorIs(t, err, ErrInvalidLimit)
	_, _, err = store.List(ctx, repo, Filter{Cursor: "oops"})
	assert.ErrorIs(t, err, ErrInvalidCursor)
}
