package port

import (
	"context"
	"time"
)

// StockGate is the outcome of a reservation attempt against the cache mirror.
type StockGate int

const (
	// GateMiss means the mirror has no entry for the item; the caller must
	// fall through to the authoritative store.
	GateMiss StockGate = iota
	GateReserved
	GateRejected
)

// CacheRepository mirrors ledger stock for fast rejection and holds
// short-lived coordination keys. The mirror is advisory: the transactional
// store stays authoritative and callers restore the mirror whenever the
// guarded operation does not commit.
type CacheRepository interface {
	// ReserveStock atomically decrements mirrored stock when enough remains.
	ReserveStock(ctx context.Context, itemID string, quantity int) (StockGate, error)

	// ReleaseStock restores mirrored stock (rollback or cancellation).
	ReleaseStock(ctx context.Context, itemID string, quantity int) error

	// SetStock overwrites the mirrored value, DeleteStock drops it.
	SetStock(ctx context.Context, itemID string, quantity int) error
	DeleteStock(ctx context.Context, itemID string) error

	// SetIdempotency claims a request key, returning false if already claimed.
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// AcquireSweepLock claims sweep leadership for ttl, returning false
	// when another process holds it.
	AcquireSweepLock(ctx context.Context, ttl time.Duration) (bool, error)
}
