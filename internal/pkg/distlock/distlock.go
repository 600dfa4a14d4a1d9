// Package distlock provides a best-effort mutex shared between processes,
// used to keep concurrent deploys from running schema migrations at once.
package distlock

import (
	"context"
	"database/sql"
	"errors"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Release when the lock was lost or never taken.
var ErrNotHeld = errors.New("distlock: lock not held")

// Lock is a non-blocking mutual exclusion lock. A Lock value must not be
// shared between goroutines.
type Lock interface {
	// Acquire tries to take the lock and reports whether it did.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock back if this holder still owns it.
	Release(ctx context.Context) error
}

// NewLock returns a Redis lock when rdb is non-nil and a PostgreSQL advisory
// lock on conn otherwise.
func NewLock(rdb redis.Cmdable, conn *sql.Conn, key string, ttl time.Duration) Lock {
	if rdb != nil {
		return NewRedisLock(rdb, key, ttl)
	}
	return NewPGAdvisoryLock(conn, key)
}

// PGAdvisoryLock is a session-level advisory lock. Advisory locks belong to
// a database session, so it holds a single pinned connection rather than a
// pool. The lock also goes away when that connection drops.
type PGAdvisoryLock struct {
	conn   *sql.Conn
	lockID int64
}

// NewPGAdvisoryLock derives a stable lock ID from key.
func NewPGAdvisoryLock(conn *sql.Conn, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{conn: conn, lockID: int64(h.Sum64())}
}

func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	var ok bool
	err := l.conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&ok)
	return ok, err
}

func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	var ok bool
	if err := l.conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID).Scan(&ok); err != nil {
		return err
	}
	if !ok {
		return ErrNotHeld
	}
	return nil
}
