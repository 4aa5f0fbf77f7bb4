package verdict

import "encoding/json"

// Status is the terminal outcome of an analysis.
type Status string

const (
	StatusApproved Status = "approved"
	StatusBlocked  Status = "blocked"
	StatusError    Status = "error"
)

// ParseStatus maps a detector status string onto the closed Status set.
// The detector's risk-only endpoints say "safe" where the full endpoint
// says "approved"; both mean the same thing here.
func ParseStatus(s string) (Status, bool) {
	switch s {
	case "approved", "safe":
		return StatusApproved, true
	case "blocked":
		return StatusBlocked, true
	case "error":
		return StatusError, true
	default:
		return "", false
	}
}

// RiskLevel is the ordinal severity derived from the aggregate risk value.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Aggregate-risk cutoffs on the detector's 0-1 scale. The high cutoff
// doubles as the blocked/approved threshold when a payload carries no
// usable status.
const (
	highRiskCutoff   = 0.6
	mediumRiskCutoff = 0.3
)

// RiskLevelFor derives the level from an aggregate risk on the 0-1 scale.
// The cutoffs are the documented current behavior, not tunables.
func RiskLevelFor(aggregate float64) RiskLevel {
	switch {
	case aggregate > highRiskCutoff:
		return RiskHigh
	case aggregate > mediumRiskCutoff:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ThreatCategory names why a prompt was judged unsafe. Empty means absent:
// no threat, or nothing to categorize (attachment-only submission).
type ThreatCategory string

const (
	CategoryNone                ThreatCategory = ""
	CategoryInstructionOverride ThreatCategory = "instruction-override"
	CategoryPromptExtraction    ThreatCategory = "prompt-extraction"
	CategoryRoleHijacking       ThreatCategory = "role-hijacking"
	CategoryJailbreakAttempt    ThreatCategory = "jailbreak-attempt"
	CategoryGeneralInjection    ThreatCategory = "general-injection"
)

// ConfidenceBucket is the qualitative reading of the confidence score.
type ConfidenceBucket string

const (
	ConfidenceVeryHigh ConfidenceBucket = "very-high"
	ConfidenceHigh     ConfidenceBucket = "high"
	ConfidenceModerate ConfidenceBucket = "moderate"
	ConfidenceLow      ConfidenceBucket = "low"
)

// RiskSignal holds the three independent 0-100 measurements the detector
// produces for a prompt. BenignOffset dampens confidence, it is not a risk.
type RiskSignal struct {
	MLRisk       int `json:"ml_risk"`
	LexicalRisk  int `json:"lexical_risk"`
	BenignOffset int `json:"benign_offset"`
}

// Result is the canonical verdict every rendering layer consumes, regardless
// of which detector response shape produced it. RiskLevel, Confidence and
// ThreatCategory are pure functions of the other fields and are never
// mutated independently.
type Result struct {
	Status           Status           `json:"status"`
	Risk             RiskSignal       `json:"risk_signal"`
	Aggregate        float64          `json:"risk_score"`
	RiskLevel        RiskLevel        `json:"risk_level"`
	Confidence       int              `json:"confidence"`
	ConfidenceBucket ConfidenceBucket `json:"confidence_bucket"`
	ThreatCategory   ThreatCategory   `json:"threat_category,omitempty"`
	ElapsedMs        int64            `json:"elapsed_ms"`
	Message          string           `json:"message,omitempty"`
	Suggestion       string           `json:"suggestion,omitempty"`
	Response         string           `json:"response,omitempty"`

	// Aux carries detector side-channel payloads (vigil_analysis,
	// intent_analysis, escalation_analysis, ...) byte-for-byte. The
	// gateway never interprets their internal structure.
	Aux map[string]json.RawMessage `json:"aux,omitempty"`
}

// ErrorResult builds the synthetic terminal result used when the remote
// call fails: all signals zeroed, never mistaken for an approval.
func ErrorResult(message string) *Result {
	conf, bucket := Score(0, 0, 0)
	return &Result{
		Status:           StatusError,
		Risk:             RiskSignal{},
		RiskLevel:        RiskLow,
		Confidence:       conf,
		ConfidenceBucket: bucket,
		Message:          message,
	}
}
