package handler

import (
	"time"

	"whatsapp-agent/internal/domain"
)

// webhookPayload covers the gateway's received-message callback and the
// older flat shape (from/body, or the same fields under messages[0]).
type webhookPayload struct {
	MessageID     string           `json:"messageId"`
	ID            string           `json:"id"`
	Phone         string           `json:"phone"`
	From          string           `json:"from"`
	FromMe        bool             `json:"fromMe"`
	IsStatusReply bool             `json:"isStatusReply"`
	IsEdit        bool             `json:"isEdit"`
	Status        string           `json:"status"`
	Moment        int64            `json:"momment"`
	Text          *webhookText     `json:"text"`
	Body          string           `json:"body"`
	Contact       *webhookContact  `json:"contact"`
	Contacts      []webhookContact `json:"contacts"`
	Messages      []legacyMessage  `json:"messages"`
}

type webhookText struct {
	Message string `json:"message"`
}

type webhookContact struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Phone       string   `json:"phone"`
	Phones      []string `json:"phones"`
	VCard       string   `json:"vCard"`
}

type legacyMessage struct {
	ID   string `json:"id"`
	From string `json:"from"`
	Body string `json:"body"`
}

func (p webhookPayload) toEvent(now time.Time) domain.InboundEvent {
	var legacy legacyMessage
	if len(p.Messages) > 0 {
		legacy = p.Messages[0]
	}

	ev := domain.InboundEvent{
		EventID:       firstNonEmpty(p.MessageID, p.ID, legacy.ID),
		Sender:        firstNonEmpty(p.Phone, p.From, legacy.From),
		FromMe:        p.FromMe,
		IsStatusReply: p.IsStatusReply,
		IsEdit:        p.IsEdit,
		Status:        p.Status,
		ReceivedAt:    now,
	}
	if p.Moment > 0 {
		ev.ReceivedAt = time.UnixMilli(p.Moment)
	}

	var text string
	if p.Text != nil {
		text = p.Text.Message
	}
	ev.Payload.Text = firstNonEmpty(text, p.Body, legacy.Body)
	if p.Contact != nil {
		c := p.Contact.toDomain()
		ev.Payload.Contact = &c
	}
	for _, c := range p.Contacts {
		ev.Payload.Contacts = append(ev.Payload.Contacts, c.toDomain())
	}
	return ev
}

func (c webhookContact) toDomain() domain.Contact {
	phone := c.Phone
	if phone == "" && len(c.Phones) > 0 {
		phone = c.Phones[0]
	}
	return domain.Contact{
		Name:  firstNonEmpty(c.Name, c.DisplayName),
		Phone: phone,
		VCard: c.VCard,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
