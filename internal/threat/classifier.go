package threat

import (
	"strings"

	"github.com/promptguard/gateway/internal/verdict"
)

// Classifier assigns a threat category to prompt text that has already
// been judged unsafe. It never decides safety itself: callers consult it
// only for blocked prompts, to explain why.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier over the given rules. A nil slice
// selects DefaultRules.
func NewClassifier(rules []Rule) *Classifier {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// Classify returns the category of the first matching rule. An empty
// prompt (a file-only submission) has no category. A non-empty prompt
// matching no specific rule falls back to general-injection, since the
// caller has already established the prompt is unsafe.
func (c *Classifier) Classify(prompt string) verdict.ThreatCategory {
	if strings.TrimSpace(prompt) == "" {
		return verdict.CategoryNone
	}
	for _, rule := range c.rules {
		if rule.Regex.MatchString(prompt) {
			return rule.Category
		}
	}
	return verdict.CategoryGeneralInjection
}
