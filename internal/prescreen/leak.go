package prescreen

import (
	"math"
	"strings"
)

// leakPatterns are phrases whose presence in a model reply suggests
// system or policy information escaping to the user.
var leakPatterns = []string{
	"system prompt",
	"internal policy",
	"developer message",
	"my instructions are",
	"i was instructed to",
	"openai policy",
	"as an ai language model",
}

const (
	// leakPatternWeight is added per matched phrase; scores cap at 1.
	leakPatternWeight = 0.3
	// LeakThreshold is the score above which a reply is withheld.
	LeakThreshold = 0.4
)

// WithheldNotice replaces a reply whose leak score crossed the threshold.
const WithheldNotice = "⚠️ Response withheld due to potential policy or system information leakage."

// LeakScore rates how strongly a model reply smells of leaked system or
// policy information.
func LeakScore(reply string) float64 {
	lowered := strings.ToLower(reply)
	score := 0.0
	for _, p := range leakPatterns {
		if strings.Contains(lowered, p) {
			score += leakPatternWeight
		}
	}
	return math.Min(score, 1)
}

// ScreenReply returns the reply as the user may see it. Replies scoring
// over the leak threshold come back as the withholding notice, with ok
// set to false.
func ScreenReply(reply string) (screened string, ok bool) {
	if LeakScore(reply) > LeakThreshold {
		return WithheldNotice, false
	}
	return reply, true
}
