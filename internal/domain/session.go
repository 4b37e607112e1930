package domain

// Stage is the coarse conversational progress marker for a sender.
type Stage string

const (
	StageInit                     Stage = "INIT"
	StageWaitingBuyerConfirmation Stage = "WAITING_BUYER_CONFIRMATION"
	StageWaitingBuyerContact      Stage = "WAITING_BUYER_CONTACT"
)

// Rank orders stages so transitions can be checked for monotonicity.
// Unknown stages rank as INIT.
func (s Stage) Rank() int {
	switch s {
	case StageWaitingBuyerConfirmation:
		return 1
	case StageWaitingBuyerContact:
		return 2
	default:
		return 0
	}
}

// Session is the per-sender conversation state kept between turns.
type Session struct {
	ThreadID string `json:"threadId,omitempty"`
	Stage    Stage  `json:"stage"`
}
