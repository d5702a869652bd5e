package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker coordinates access to a workflow across several engine replicas,
// so that two processes never run stages of the same request concurrently.
type DistributedLocker interface {
	// Lock blocks until the lock for key (a request ID) is held or ctx is done.
	// The lock is kept alive while held and expires after ttl once its holder
	// stops refreshing it, e.g. after a crash.
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
