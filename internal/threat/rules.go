package threat

import (
	"regexp"

	"github.com/promptguard/gateway/internal/verdict"
)

// Rule pairs a detection pattern with the category it assigns.
type Rule struct {
	Name     string
	Regex    *regexp.Regexp
	Category verdict.ThreatCategory
}

// DefaultRules returns the built-in categorization rules. Order matters:
// rules are evaluated top to bottom and the first match wins, so the
// slice encodes the category priority (override before extraction before
// role hijacking before jailbreak).
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "ignore_previous",
			Regex:    regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|earlier|above)\s+(instructions?|prompts?|rules?|context)`),
			Category: verdict.CategoryInstructionOverride,
		},
		{
			Name:     "disregard_prior",
			Regex:    regexp.MustCompile(`(?i)disregard\s+(all\s+|any\s+)?(prior|previous|earlier)\s+(instructions?|context|rules?)`),
			Category: verdict.CategoryInstructionOverride,
		},
		{
			Name:     "forget_instructions",
			Regex:    regexp.MustCompile(`(?i)forget\s+(all\s+)?(your|previous|prior)\s+(instructions?|rules?|training)`),
			Category: verdict.CategoryInstructionOverride,
		},
		{
			Name:     "new_instructions",
			Regex:    regexp.MustCompile(`(?i)(new|updated|revised)\s+instructions?\s*:`),
			Category: verdict.CategoryInstructionOverride,
		},
		{
			Name:     "override_policy",
			Regex:    regexp.MustCompile(`(?i)override\s+(your|the|all|any)?\s*(instructions?|polic(?:y|ies)|rules?|safety)`),
			Category: verdict.CategoryInstructionOverride,
		},
		{
			Name:     "reveal_system_prompt",
			Regex:    regexp.MustCompile(`(?i)(reveal|show|print|repeat|display|output)\s+.{0,30}(system\s+prompt|initial\s+prompt|your\s+instructions)`),
			Category: verdict.CategoryPromptExtraction,
		},
		{
			Name:     "what_instructions",
			Regex:    regexp.MustCompile(`(?i)what\s+(are|were)\s+your\s+(instructions?|rules?|guidelines)`),
			Category: verdict.CategoryPromptExtraction,
		},
		{
			Name:     "system_prompt_mention",
			Regex:    regexp.MustCompile(`(?i)(your|the)\s+(system|initial|original)\s+prompt`),
			Category: verdict.CategoryPromptExtraction,
		},
		{
			Name:     "repeat_above",
			Regex:    regexp.MustCompile(`(?i)repeat\s+(the\s+)?(text|words|everything)\s+above`),
			Category: verdict.CategoryPromptExtraction,
		},
		{
			Name:     "you_are_now",
			Regex:    regexp.MustCompile(`(?i)you\s+are\s+now\s+(a|an|the)\s+`),
			Category: verdict.CategoryRoleHijacking,
		},
		{
			Name:     "act_as",
			Regex:    regexp.MustCompile(`(?i)act\s+as\s+(if\s+)?(a|an|the|my|you)\b`),
			Category: verdict.CategoryRoleHijacking,
		},
		{
			Name:     "pretend",
			Regex:    regexp.MustCompile(`(?i)pretend\s+(to\s+be|you\s+are)`),
			Category: verdict.CategoryRoleHijacking,
		},
		{
			Name:     "roleplay_as",
			Regex:    regexp.MustCompile(`(?i)role[-\s]?play\s+as`),
			Category: verdict.CategoryRoleHijacking,
		},
		{
			Name:     "developer_mode",
			Regex:    regexp.MustCompile(`(?i)(developer|debug|god)\s+mode`),
			Category: verdict.CategoryRoleHijacking,
		},
		{
			Name:     "jailbreak_mode",
			Regex:    regexp.MustCompile(`(?i)(jailbreak|do\s+anything\s+now|\bdan\b|unrestricted\s+mode)`),
			Category: verdict.CategoryJailbreakAttempt,
		},
		{
			Name:     "bypass_safety",
			Regex:    regexp.MustCompile(`(?i)bypass\s+.{0,20}(safety|filters?|guardrails?|restrictions?)`),
			Category: verdict.CategoryJailbreakAttempt,
		},
		{
			Name:     "no_restrictions",
			Regex:    regexp.MustCompile(`(?i)without\s+(any\s+)?(restrictions?|limits?|filters?)`),
			Category: verdict.CategoryJailbreakAttempt,
		},
	}
}
