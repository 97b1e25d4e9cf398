package ports

import (
	"context"
	"time"
)

// UnlockFunc releases a held lock.
type UnlockFunc func(ctx context.Context) error

// DocumentLocker serializes access to a document across processes. The
// in-process session manager covers the single-process case; deployments
// sharing a scheduler store need a distributed implementation.
type DocumentLocker interface {
	Lock(ctx context.Context, documentID string, ttl time.Duration) (UnlockFunc, error)
}
