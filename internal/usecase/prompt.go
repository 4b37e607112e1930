package usecase

import (
	"strings"

	"whatsapp-agent/internal/domain"
)

// buildTurnMessage wraps the customer's combined text with the conversation
// stage so the assistant does not restart the conversation on a reused thread.
// The first turn of a new thread goes through untouched.
func buildTurnMessage(stage domain.Stage, newThread bool, combined string) string {
	if newThread && stage.Rank() == 0 {
		return combined
	}
	return strings.Join([]string{
		"Conversation context:",
		"- Current stage: " + string(stageOrInit(stage)),
		"- You already introduced yourself; do not greet or introduce yourself again.",
		stageGuidance(stage),
		"",
		"Customer message:",
		combined,
	}, "\n")
}

func stageGuidance(stage domain.Stage) string {
	switch stage {
	case domain.StageWaitingBuyerConfirmation:
		return "- The customer was offered a purchase; continue from the order confirmation."
	case domain.StageWaitingBuyerContact:
		return "- Buyer name and phone were requested; do not repeat earlier steps."
	default:
		return "- Continue the conversation from where it stopped."
	}
}

func stageOrInit(stage domain.Stage) domain.Stage {
	if stage == "" {
		return domain.StageInit
	}
	return stage
}
