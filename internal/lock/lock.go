// Package lock provides etcd-backed distributed locking so that only one
// orchestrator instance mutates a given session at a time, grounded on the
// etcd session/mutex idiom in the teacher's sibling repo
// (volaticloud/internal/etcd/client.go).
package lock

import (
	"context"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	sferrors "github.com/sessionforge/sessionforge/internal/errors"
)

// SessionTTL is the etcd lease TTL backing every lock session. A lock is
// released automatically if its holder crashes without unlocking, after at
// most this long.
const SessionTTL = 15 // seconds

// Locker hands out per-session_id mutexes so concurrent CreateSession,
// DeleteSession, and monitor-sweep calls for the same session serialize
// instead of racing.
type Locker struct {
	cli    *clientv3.Client
	prefix string
}

func New(cli *clientv3.Client) *Locker {
	return &Locker{cli: cli, prefix: "/sessionforge/locks/"}
}

// Lock is a held mutex; call Unlock when the critical section is done.
type Lock struct {
	session *concurrency.Session
	mutex   *concurrency.Mutex
}

// Acquire blocks until the named session's lock is held or ctx is done.
func (l *Locker) Acquire(ctx context.Context, sessionID string) (*Lock, error) {
	sess, err := concurrency.NewSession(l.cli, concurrency.WithTTL(SessionTTL))
	if err != nil {
		return nil, sferrors.ProviderUnavailable("lock.Acquire", "etcd session create failed", err)
	}

	mu := concurrency.NewMutex(sess, l.prefix+sessionID)
	if err := mu.Lock(ctx); err != nil {
		_ = sess.Close()
		return nil, sferrors.ProviderUnavailable("lock.Acquire", fmt.Sprintf("failed to acquire lock for %s", sessionID), err)
	}

	return &Lock{session: sess, mutex: mu}, nil
}

// TryAcquire attempts to acquire the lock without blocking past timeout,
// used by the monitor sweep so a session already being mutated by a
// concurrent request is simply skipped this round rather than stalling it.
func (l *Locker) TryAcquire(ctx context.Context, sessionID string, timeout time.Duration) (*Lock, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return l.Acquire(ctx, sessionID)
}

// Unlock releases the mutex and closes its backing etcd session.
func (lk *Lock) Unlock(ctx context.Context) error {
	if err := lk.mutex.Unlock(ctx); err != nil {
		return sferrors.Wrap("lock.Unlock", "failed to release lock", err)
	}
	return lk.session.Close()
}
