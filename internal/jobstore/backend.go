package jobstore

import (
	"context"
	"time"
)

// backend is the persistence contract shared by the SQLite primary and the
// in-process fallback. Payloads are opaque serialized records. loadAll must
// return payloads in first-insertion order so sort ties stay stable across
// backends.
type backend interface {
	save(ctx context.Context, key string, payload []byte, expiresAt time.Time) error
	get(ctx context.Context, key string, now time.Time) ([]byte, bool, error)
	remove(ctx context.Context, key string) error
	loadAll(ctx context.Context, prefix string, now time.Time) ([][]byte, error)
	purgeExpired(ctx context.Context, now time.Time) (int, error)
	close() error
}
