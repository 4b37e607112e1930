package usecase

import (
	"context"
	"strings"
	"time"

	"whatsapp-agent/internal/domain"
)

// IsNoise reports whether ev is gateway protocol noise rather than a user
// turn, with a short reason for logging.
func IsNoise(ev domain.InboundEvent) (bool, string) {
	switch {
	case ev.FromMe:
		return true, "from_me"
	case ev.IsStatusReply:
		return true, "status_reply"
	case ev.IsEdit:
		return true, "edit"
	case ev.Status != "" && !strings.EqualFold(ev.Status, domain.DeliveryStatusReceived):
		return true, "status_" + strings.ToLower(ev.Status)
	}
	return false, ""
}

// DedupFilter remembers processed gateway event ids.
type DedupFilter struct {
	store Store
	ttl   time.Duration
}

func NewDedupFilter(store Store, ttl time.Duration) *DedupFilter {
	return &DedupFilter{store: store, ttl: ttl}
}

// Admit records eventID and reports whether it was seen for the first time.
// Events without an id cannot be deduplicated and always pass.
func (d *DedupFilter) Admit(ctx context.Context, eventID string) (bool, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return true, nil
	}
	return d.store.SetIfAbsent(ctx, eventKey(eventID), "1", d.ttl)
}
