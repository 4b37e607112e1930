package usecase

import (
	"context"
	"time"
)

// Gate allows one processing pass per sender at a time. The lock carries a
// TTL so a pass that dies without releasing cannot wedge a sender forever.
// Each pass holds the lock under its own token, so a pass that outlived the
// TTL cannot release a lock claimed after it.
type Gate struct {
	store Store
	ttl   time.Duration
}

func NewGate(store Store, ttl time.Duration) *Gate {
	return &Gate{store: store, ttl: ttl}
}

// TryEnter claims the sender's lock for token. It never waits: false means
// another pass holds it and the caller must abandon its trigger.
func (g *Gate) TryEnter(ctx context.Context, sender, token string) (bool, error) {
	return g.store.SetIfAbsent(ctx, lockKey(sender), token, g.ttl)
}

// Leave releases the sender's lock if token still owns it. It reports false
// when the lock is free or held by another pass.
func (g *Gate) Leave(ctx context.Context, sender, token string) (bool, error) {
	return g.store.CompareAndDelete(ctx, lockKey(sender), token)
}
