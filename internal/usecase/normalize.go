package usecase

import (
	"fmt"
	"strings"

	"github.com/emersion/go-vcard"

	"whatsapp-agent/internal/domain"
)

const notProvided = "not provided"

// NormalizeSender strips every non-digit from a gateway sender identifier.
func NormalizeSender(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeMessage derives the text the assistant sees from a payload. It
// returns "" for shapes that carry nothing usable.
func NormalizeMessage(p domain.Payload) string {
	if text := strings.TrimSpace(p.Text); text != "" {
		return text
	}
	if p.Contact != nil {
		return describeContact(*p.Contact)
	}
	if len(p.Contacts) > 0 {
		return describeContact(p.Contacts[0])
	}
	return ""
}

// Normalize resolves the sender key and message text of ev. Events without
// a sender or without usable content are discarded with
// ErrorNormalizationDiscard.
func Normalize(ev domain.InboundEvent) (sender, message string, err error) {
	sender = NormalizeSender(ev.Sender)
	if sender == "" {
		return "", "", newError(ErrorNormalizationDiscard, "no_sender", nil)
	}
	message = NormalizeMessage(ev.Payload)
	if message == "" {
		return "", "", newError(ErrorNormalizationDiscard, "empty_message", nil)
	}
	return sender, message, nil
}

func describeContact(c domain.Contact) string {
	name := strings.TrimSpace(c.Name)
	phone := strings.TrimSpace(c.Phone)
	if (name == "" || phone == "") && strings.TrimSpace(c.VCard) != "" {
		cardName, cardPhone := parseVCard(c.VCard)
		if name == "" {
			name = cardName
		}
		if phone == "" {
			phone = cardPhone
		}
	}
	if name == "" {
		name = notProvided
	}
	if phone == "" {
		phone = notProvided
	}
	return fmt.Sprintf("Contact shared:\nName: %s\nPhone: %s", name, phone)
}

// parseVCard extracts the display name and first telephone of a vCard blob.
// Unparseable blobs yield empty fields.
func parseVCard(blob string) (name, phone string) {
	card, err := vcard.NewDecoder(strings.NewReader(blob)).Decode()
	if err != nil {
		return "", ""
	}
	name = strings.TrimSpace(card.PreferredValue(vcard.FieldFormattedName))
	if name == "" {
		if n := card.Name(); n != nil {
			name = strings.TrimSpace(strings.Join(strings.Fields(n.GivenName+" "+n.FamilyName), " "))
		}
	}
	phone = strings.TrimSpace(card.PreferredValue(vcard.FieldTelephone))
	return name, phone
}
