package locks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS locks (
	id bigserial PRIMARY KEY,
	path text NOT NULL,
	ref_name text,
	repo text NOT NULL,
	owner text NOT NULL,
	locked_at timestamptz NOT NULL DEFAULT now()
)`

const schemaIndex = `
CREATE UNIQUE INDEX IF NOT EXISTS locks_repo_path ON locks (repo, path)`

// PostgresConfig carries the connection parameters of the shared lock
// database.
type PostgresConfig struct {
	Host     string
	Database string
	User     string
	Password string
}

// Postgres is the shared lock backend. The schema is created on open,
// so a fresh database works without migrations.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects, verifies the connection and bootstraps the
// schema.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	dsn := fmt.Sprintf("host=%s dbname=%s user=%s password=%s sslmode=disable",
		cfg.Host, cfg.Database, cfg.User, cfg.Password)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, ErrConnection.Wrap(err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, ErrConnection.Wrap(err)
	}

	for _, stmt := range []string{schema, schemaIndex} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, ErrPrepare.Wrap(err)
		}
	}
	return &Postgres{db: db}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return ErrConnection.Wrap(p.db.Close())
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLock(row rowScanner) (*Lock, error) {
	var (
		id      int64
		lock    Lock
		refName sql.NullString
	)
	if err := row.Scan(&id, &lock.Path, &refName, &lock.Owner.Name, &lock.LockedAt); err != nil {
		return nil, err
	}
	lock.ID = strconv.FormatInt(id, 10)
	lock.RefName = refName.String
	lock.LockedAt = lock.LockedAt.UTC().Truncate(time.Second)
	return &lock, nil
}

func (p *Postgres) selectByPath(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}, repo, path string) (*Lock, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, path, ref_name, owner, locked_at FROM locks WHERE repo = $1 AND path = $2`,
		repo, path)
	return scanLock(row)
}

// Create inserts a lock under a serializable transaction. If the path
// is already locked, the existing lock is returned unchanged with
// created=false, whoever holds it.
func (p *Postgres) Create(ctx context.Context, repo, user, path, ref string) (_ *Lock, created bool, err error) {
	defer mon.Task()(&ctx)(&err)

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, false, ErrConnection.Wrap(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	existing, err := p.selectByPath(ctx, tx, repo, path)
	if err == nil {
		if err := tx.Commit(); err != nil {
			return nil, false, ErrExecute.Wrap(err)
		}
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, ErrExecute.Wrap(err)
	}

	lockedAt := lockedNow()
	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO locks (path, ref_name, repo, owner, locked_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		path, ref, repo, user, lockedAt).Scan(&id)
	if err != nil {
		_ = tx.Rollback()
		if isUniqueViolation(err) {
			// Lost the race: another request locked the path between the
			// select and the insert. Hand back what it created.
			existing, selErr := p.selectByPath(ctx, p.db, repo, path)
			if selErr != nil {
				return nil, false, ErrExecute.Wrap(ErrLockAlreadyExists)
			}
			return existing, false, nil
		}
		return nil, false, ErrExecute.Wrap(err)
	}

	if err = tx.Commit(); err != nil {
		return nil, false, ErrExecute.Wrap(err)
	}

	return &Lock{
		ID:       strconv.FormatInt(id, 10),
		Path:     path,
		LockedAt: lockedAt,
		Owner:    Owner{Name: user},
		RefName:  ref,
	}, true, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// List returns one page of locks ordered by id, plus the cursor of the
// next page when more rows exist.
func (p *Postgres) List(ctx context.Context, repo string, filter Filter) (nextCursor string, _ []Lock, err error) {
	defer mon.Task()(&ctx)(&err)

	page, fetch, err := parseLimit(filter.Limit)
	if err != nil {
		return "", nil, err
	}

	query := `SELECT id, path, ref_name, owner, locked_at FROM locks WHERE repo = $1`
	args := []interface{}{repo}

	if filter.Path != "" {
		args = append(args, filter.Path)
		query += fmt.Sprintf(" AND path = $%d", len(args))
	}
	if filter.ID != "" {
		id, err := strconv.ParseInt(filter.ID, 10, 64)
		if err != nil || id < 0 {
			return "", nil, ErrInvalidID
		}
		args = append(args, id)
		query += fmt.Sprintf(" AND id = $%d", len(args))
	}
	if filter.Cursor != "" {
		cursor, err := strconv.ParseInt(filter.Cursor, 10, 64)
		if err != nil || cursor < 0 {
			return "", nil, ErrInvalidCursor
		}
		args = append(args, cursor)
		query += fmt.Sprintf(" AND id >= $%d", len(args))
	}
	args = append(args, fetch+1)
	query += fmt.Sprintf(" ORDER BY id ASC LIMIT $%d", len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return "", nil, ErrExecute.Wrap(err)
	}
	defer func() { _ = rows.Close() }()

	fetched := []Lock{}
	for rows.Next() {
		lock, err := scanLock(rows)
		if err != nil {
			return "", nil, ErrParse.Wrap(err)
		}
		fetched = append(fetched, *lock)
	}
	if err := rows.Err(); err != nil {
		return "", nil, ErrExecute.Wrap(err)
	}

	nextCursor, out := paginate(fetched, page)
	return nextCursor, out, nil
}

// Delete removes a lock by id. Deleting someone else's lock requires
// force.
func (p *Postgres) Delete(ctx context.Context, repo, user, id, ref string, force bool) (_ *Lock, err error) {
	defer mon.Task()(&ctx)(&err)

	numericID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || numericID < 0 {
		return nil, ErrInvalidID
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, ErrConnection.Wrap(err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	row := tx.QueryRowContext(ctx,
		`SELECT id, path, ref_name, owner, locked_at FROM locks WHERE repo = $1 AND id = $2`,
		repo, numericID)
	lock, err := scanLock(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLockNotFound
	}
	if err != nil {
		return nil, ErrExecute.Wrap(err)
	}

	if lock.Owner.Name != user && !force {
		return nil, ErrForceDeleteRequired
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM locks WHERE id = $1`, numericID); err != nil {
		return nil, ErrExecute.Wrap(err)
	}
	if err = tx.Commit(); err != nil {
		return nil, ErrExecute.Wrap(err)
	}
	return lock, nil
}
