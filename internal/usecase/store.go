package usecase

import (
	"context"
	"time"
)

// Store is the keyed state backend shared by the dedup filter, the
// concurrency gate and the session tracker. A zero ttl means no expiry.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetIfAbsent writes only when key holds no live value and reports
	// whether it did. It must be atomic.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	// CompareAndDelete removes key only while it holds value and reports
	// whether it did. It must be atomic.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}

func sessionKey(sender string) string { return "session#" + sender }
func lockKey(sender string) string    { return "lock#" + sender }
func eventKey(eventID string) string  { return "event#" + eventID }
