package usecase

import (
	"context"
	"fmt"
	"strings"

	"whatsapp-agent/internal/domain"
)

// Gateway is the outbound messaging gateway.
type Gateway interface {
	SendText(ctx context.Context, phone, text string) (domain.DeliveryReceipt, error)
}

// ReplyDispatcher hands replies to the gateway. Failures are final: nothing
// is retried or re-buffered.
type ReplyDispatcher struct {
	gateway    Gateway
	adminPhone string
}

func NewReplyDispatcher(gateway Gateway, adminPhone string) *ReplyDispatcher {
	return &ReplyDispatcher{gateway: gateway, adminPhone: NormalizeSender(adminPhone)}
}

// Deliver sends reply to sender.
func (r *ReplyDispatcher) Deliver(ctx context.Context, sender, reply string) (domain.DeliveryReceipt, error) {
	if strings.TrimSpace(reply) == "" {
		return domain.DeliveryReceipt{}, newError(ErrorDelivery, "empty_reply", nil)
	}
	receipt, err := r.gateway.SendText(ctx, sender, reply)
	if err != nil {
		return domain.DeliveryReceipt{}, newError(ErrorDelivery, "send_text", err)
	}
	return receipt, nil
}

// NotifyOperator tells the admin phone that sender reached the purchase
// hand-off. It is a no-op without an admin phone.
func (r *ReplyDispatcher) NotifyOperator(ctx context.Context, sender string) error {
	if r.adminPhone == "" {
		return nil
	}
	if _, err := r.gateway.SendText(ctx, r.adminPhone, fmt.Sprintf("Purchase hand-off started for %s", sender)); err != nil {
		return newError(ErrorDelivery, "notify_operator", err)
	}
	return nil
}
