package usecase

import (
	"regexp"
	"strings"

	"whatsapp-agent/internal/domain"
)

// DefaultHandoffPhrases is the marker the assistant emits when the customer
// wants to close an order.
var DefaultHandoffPhrases = []string{"VOU_GERAR_PRE_PEDIDO"}

// Default terms for a reply that asks the buyer for a name and a phone.
var (
	DefaultContactNameTerms  = []string{"nome", "name"}
	DefaultContactPhoneTerms = []string{"telefone", "phone"}
)

// StageClassifier proposes the next stage from the assistant's reply.
// Implementations may return any stage; callers only ever move forward.
type StageClassifier interface {
	Next(current domain.Stage, reply string) domain.Stage
}

// ReplyScrubber is implemented by classifiers whose markers are meant for
// the orchestrator only and must not reach the customer.
type ReplyScrubber interface {
	Scrub(reply string) string
}

// KeywordClassifier matches the reply text case-insensitively. A reply is a
// contact request when it mentions at least one name term and one phone term.
type KeywordClassifier struct {
	HandoffPhrases    []string
	ContactNameTerms  []string
	ContactPhoneTerms []string
}

// NewKeywordClassifier fills empty lists with the defaults.
func NewKeywordClassifier(handoff, nameTerms, phoneTerms []string) KeywordClassifier {
	return KeywordClassifier{
		HandoffPhrases:    orDefault(handoff, DefaultHandoffPhrases),
		ContactNameTerms:  orDefault(nameTerms, DefaultContactNameTerms),
		ContactPhoneTerms: orDefault(phoneTerms, DefaultContactPhoneTerms),
	}
}

func (k KeywordClassifier) Next(current domain.Stage, reply string) domain.Stage {
	text := strings.ToLower(reply)
	switch current {
	case domain.StageInit, "":
		if containsAny(text, k.HandoffPhrases) {
			return domain.StageWaitingBuyerConfirmation
		}
	case domain.StageWaitingBuyerConfirmation:
		if containsAny(text, k.ContactNameTerms) && containsAny(text, k.ContactPhoneTerms) {
			return domain.StageWaitingBuyerContact
		}
	}
	return current
}

// Scrub removes every hand-off phrase from reply, ignoring case.
func (k KeywordClassifier) Scrub(reply string) string {
	out := reply
	for _, p := range k.HandoffPhrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = regexp.MustCompile("(?i)"+regexp.QuoteMeta(p)).ReplaceAllString(out, "")
	}
	if out == reply {
		return reply
	}
	return strings.TrimSpace(out)
}

func containsAny(lowered string, phrases []string) bool {
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}

func orDefault(v, def []string) []string {
	for _, s := range v {
		if strings.TrimSpace(s) != "" {
			return v
		}
	}
	return def
}
