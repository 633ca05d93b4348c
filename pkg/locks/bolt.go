package locks

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"strconv"
	"time"

	"github.com/boltdb/bolt"
)

var lockBucket = []byte("locks")

// boltLock is the stored form of a lock. The repo never appears in the
// value, each repository has its own nested bucket.
type boltLock struct {
	ID       uint64    `json:"id"`
	Path     string    `json:"path"`
	Ref      string    `json:"ref"`
	Owner    string    `json:"owner"`
	LockedAt time.Time `json:"locked_at"`
}

func (b boltLock) lock() *Lock {
	return &Lock{
		ID:       strconv.FormatUint(b.ID, 10),
		Path:     b.Path,
		LockedAt: b.LockedAt.UTC().Truncate(time.Second),
		Owner:    Owner{Name: b.Owner},
		RefName:  b.Ref,
	}
}

// Bolt is the embedded lock backend for single-node deployments, one
// nested bucket per repository keyed by big-endian lock id.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens or creates the database file and the root bucket.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, ErrConnection.Wrap(err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(lockBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, ErrPrepare.Wrap(err)
	}
	return &Bolt{db: db}, nil
}

// Close closes the database file.
func (b *Bolt) Close() error {
	return ErrConnection.Wrap(b.db.Close())
}

func lockKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

func (b *Bolt) repoBucket(tx *bolt.Tx, repo string) *bolt.Bucket {
	return tx.Bucket(lockBucket).Bucket([]byte(repo))
}

// Create stores a new lock unless the path is already locked, in which
// case the existing lock is returned with created=false.
func (b *Bolt) Create(ctx context.Context, repo, user, path, ref string) (lock *Lock, created bool, err error) {
	defer mon.Task()(&ctx)(&err)

	err = b.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.Bucket(lockBucket).CreateBucketIfNotExists([]byte(repo))
		if err != nil {
			return ErrExecute.Wrap(err)
		}

		var existing *boltLock
		err = bucket.ForEach(func(_, value []byte) error {
			var stored boltLock
			if err := json.Unmarshal(value, &stored); err != nil {
				return ErrParse.Wrap(err)
			}
			if stored.Path == path {
				existing = &stored
			}
			return nil
		})
		if err != nil {
			return err
		}
		if existing != nil {
			lock, created = existing.lock(), false
			return nil
		}

		id, err := bucket.NextSequence()
		if err != nil {
			return ErrExecute.Wrap(err)
		}
		stored := boltLock{ID: id, Path: path, Ref: ref, Owner: user, LockedAt: lockedNow()}
		value, err := json.Marshal(stored)
		if err != nil {
			return ErrParse.Wrap(err)
		}
		if err := bucket.Put(lockKey(id), value); err != nil {
			return ErrExecute.Wrap(err)
		}
		lock, created = stored.lock(), true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return lock, created, nil
}

// List walks the repo bucket in id order from the cursor on, applying
// the path and id filters before pagination.
func (b *Bolt) List(ctx context.Context, repo string, filter Filter) (nextCursor string, locks []Lock, err error) {
	defer mon.Task()(&ctx)(&err)

	page, fetch, err := parseLimit(filter.Limit)
	if err != nil {
		return "", nil, err
	}

	var filterID uint64
	if filter.ID != "" {
		filterID, err = strconv.ParseUint(filter.ID, 10, 64)
		if err != nil {
			return "", nil, ErrInvalidID
		}
	}
	var cursor uint64
	if filter.Cursor != "" {
		cursor, err = strconv.ParseUint(filter.Cursor, 10, 64)
		if err != nil {
			return "", nil, ErrInvalidCursor
		}
	}

	fetched := []Lock{}
	err = b.db.View(func(tx *bolt.Tx) error {
		bucket := b.repoBucket(tx, repo)
		if bucket == nil {
			return nil
		}

		c := bucket.Cursor()
		key, value := c.First()
		if cursor > 0 {
			key, value = c.Seek(lockKey(cursor))
		}
		for ; key != nil && len(fetched) <= fetch; key, value = c.Next() {
			var stored boltLock
			if err := json.Unmarshal(value, &stored); err != nil {
				return ErrParse.Wrap(err)
			}
			if filter.Path != "" && stored.Path != filter.Path {
				continue
			}
			if filter.ID != "" && stored.ID != filterID {
				continue
			}
			fetched = append(fetched, *stored.lock())
		}
		return nil
	})
	if err != nil {
		return "", nil, err
	}

	nextCursor, out := paginate(fetched, page)
	return nextCursor, out, nil
}

// Delete removes a lock by id, requiring force for locks held by
// someone else.
func (b *Bolt) Delete(ctx context.Context, repo, user, id, ref string, force bool) (lock *Lock, err error) {
	defer mon.Task()(&ctx)(&err)

	numericID, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return nil, ErrInvalidID
	}

	err = b.db.Update(func(tx *bolt.Tx) error {
		bucket := b.repoBucket(tx, repo)
		if bucket == nil {
			return ErrLockNotFound
		}
		value := bucket.Get(lockKey(numericID))
		if value == nil {
			return ErrLockNotFound
		}

		var stored boltLock
		if err := json.Unmarshal(value, &stored); err != nil {
			return ErrParse.Wrap(err)
		}
		if stored.Owner != user && !force {
			return ErrForceDeleteRequired
		}
		if err := bucket.Delete(lockKey(numericID)); err != nil {
			return ErrExecute.Wrap(err)
		}
		lock = stored.lock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lock, nil
}
