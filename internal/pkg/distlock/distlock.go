// Package distlock keeps two monitor cycles from mutating the record and
// ledger tables at the same time.
package distlock

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/adchange-monitor/internal/pkg/logger"
)

// ErrLocked is returned by callers when another cycle holds the lock.
var ErrLocked = errors.New("distlock: lock held by another run")

// DistLock is the interface for distributed locking.
// Implementations are safe for concurrent use; a held lock reports false
// to any other caller until Release.
type DistLock interface {
	// Acquire tries to acquire the lock. Returns true if successful.
	Acquire(ctx context.Context) (bool, error)
	// Release releases the lock if we still own it.
	Release(ctx context.Context) error
}

// NewLock picks the best available backend: Redis when a client is
// configured, PostgreSQL advisory locks when a database is, and an
// in-process lock otherwise.
func NewLock(redisClient *redis.Client, db *sql.DB, key string, ttl time.Duration) DistLock {
	switch {
	case redisClient != nil:
		return NewRedisLock(redisClient, key, ttl)
	case db != nil:
		return NewPGAdvisoryLock(db, key)
	default:
		return NewLocalLock(key)
	}
}

// WithLock runs fn while holding l. It returns ErrLocked without running fn
// when the lock is taken. Locks with a TTL are extended in the background
// until fn returns.
func WithLock(ctx context.Context, l DistLock, fn func(ctx context.Context) error) error {
	ok, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLocked
	}
	defer l.Release(context.WithoutCancel(ctx))

	if ex, ok := l.(extender); ok && ex.TTL() > 0 {
		stop := keepAlive(ctx, ex)
		defer stop()
	}
	return fn(ctx)
}

// extender is a lock that expires unless refreshed.
type extender interface {
	Extend(ctx context.Context, ttl time.Duration) error
	TTL() time.Duration
}

// keepAlive refreshes ex every third of its TTL. The returned func stops
// the heartbeat and waits for it to exit.
func keepAlive(ctx context.Context, ex extender) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	ttl := ex.TTL()

	go func() {
		defer close(done)
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ex.Extend(ctx, ttl); err != nil && ctx.Err() == nil {
					logger.Warn("distlock: extend failed", "error", err)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// PGAdvisoryLock implements DistLock using session-scoped PostgreSQL
// advisory locks. Acquire pins one pooled connection and Release unlocks
// on that same connection before handing it back.
type PGAdvisoryLock struct {
	db     *sql.DB
	lockID int64

	mu   sync.Mutex
	conn *sql.Conn
}

// NewPGAdvisoryLock creates a PG advisory lock with a deterministic lock ID
// derived from the given key string.
func NewPGAdvisoryLock(db *sql.DB, key string) *PGAdvisoryLock {
	h := fnv.New64a()
	h.Write([]byte(key))
	return &PGAdvisoryLock{
		db:     db,
		lockID: int64(h.Sum64()),
	}
}

// Acquire uses pg_try_advisory_lock, which returns immediately. A second
// Acquire on the same instance while held returns false.
func (l *PGAdvisoryLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return false, nil
	}

	conn, err := l.db.Conn(ctx)
	if err != nil {
		return false, err
	}
	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", l.lockID).Scan(&acquired); err != nil {
		conn.Close()
		return false, err
	}
	if !acquired {
		conn.Close()
		return false, nil
	}
	l.conn = conn
	return true, nil
}

// Release unlocks on the pinned connection. If the unlock cannot be
// confirmed the connection is discarded, which ends the session and with
// it the lock.
func (l *PGAdvisoryLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	conn := l.conn
	if conn == nil {
		return nil
	}
	l.conn = nil

	var released bool
	err := conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock($1)", l.lockID).Scan(&released)
	if err != nil || !released {
		logger.Warn("distlock: advisory unlock not confirmed, dropping connection", "lock_id", l.lockID, "error", err)
		conn.Raw(func(interface{}) error { return driver.ErrBadConn })
	}
	conn.Close()
	return err
}

var (
	localMu   sync.Mutex
	localHeld = map[string]bool{}
)

// LocalLock serializes runs inside a single process. Locks with the same
// key share state.
type LocalLock struct {
	key string
}

// NewLocalLock returns an in-process lock for key.
func NewLocalLock(key string) *LocalLock {
	return &LocalLock{key: key}
}

// Acquire never blocks and never fails.
func (l *LocalLock) Acquire(ctx context.Context) (bool, error) {
	localMu.Lock()
	defer localMu.Unlock()
	if localHeld[l.key] {
		return false, nil
	}
	localHeld[l.key] = true
	return true, nil
}

// Release frees the key.
func (l *LocalLock) Release(ctx context.Context) error {
	localMu.Lock()
	delete(localHeld, l.key)
	localMu.Unlock()
	return nil
}
