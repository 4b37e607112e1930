package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"whatsapp-agent/internal/domain"
)

// SessionTracker keeps each sender's thread handle and stage in the Store.
type SessionTracker struct {
	store      Store
	ttl        time.Duration
	classifier StageClassifier
}

func NewSessionTracker(store Store, ttl time.Duration, classifier StageClassifier) *SessionTracker {
	if classifier == nil {
		classifier = NewKeywordClassifier(nil, nil, nil)
	}
	return &SessionTracker{store: store, ttl: ttl, classifier: classifier}
}

// Load returns the sender's session, or a fresh INIT session.
func (t *SessionTracker) Load(ctx context.Context, sender string) (domain.Session, error) {
	raw, ok, err := t.store.Get(ctx, sessionKey(sender))
	if err != nil {
		return domain.Session{}, fmt.Errorf("usecase: load session: %w", err)
	}
	if !ok {
		return domain.Session{Stage: domain.StageInit}, nil
	}
	var sess domain.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return domain.Session{}, fmt.Errorf("usecase: decode session: %w", err)
	}
	if sess.Stage == "" {
		sess.Stage = domain.StageInit
	}
	return sess, nil
}

// Save writes the session and refreshes its TTL.
func (t *SessionTracker) Save(ctx context.Context, sender string, sess domain.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("usecase: encode session: %w", err)
	}
	if err := t.store.Set(ctx, sessionKey(sender), string(raw), t.ttl); err != nil {
		return fmt.Errorf("usecase: save session: %w", err)
	}
	return nil
}

// Scrub strips classifier markers from reply before it is sent.
func (t *SessionTracker) Scrub(reply string) string {
	if s, ok := t.classifier.(ReplyScrubber); ok {
		return s.Scrub(reply)
	}
	return reply
}

// Advance classifies reply and stores the resulting stage when it moves the
// session forward. It never lowers the stage.
func (t *SessionTracker) Advance(ctx context.Context, sender string, sess domain.Session, reply string) (domain.Session, bool, error) {
	next := t.classifier.Next(sess.Stage, reply)
	if next.Rank() <= sess.Stage.Rank() {
		return sess, false, nil
	}
	sess.Stage = next
	if err := t.Save(ctx, sender, sess); err != nil {
		return sess, true, err
	}
	return sess, true, nil
}
