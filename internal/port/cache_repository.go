package port

import "context"

type OrderLocker interface {
	// Lock blocks until the caller holds the order exclusively
	Lock(ctx context.Context, orderID string) (unlock func(), err error)
}

type IdempotencyStore interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)
	// ReleaseIdempotency frees a key whose request failed, so it can be retried
	ReleaseIdempotency(ctx context.Context, key string) error
}
