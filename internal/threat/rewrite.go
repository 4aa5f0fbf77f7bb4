package threat

import (
	"fmt"
	"strings"
)

// DefaultBlockReason is the explanation attached to a blocked verdict
// when the detector did not supply one of its own.
const DefaultBlockReason = "Our security analysis detected patterns commonly associated with prompt injection attacks. The request appears to attempt to override system instructions or manipulate the AI's behavior."

// fallbackRewrite is suggested when no safe topic can be salvaged from
// the blocked prompt.
const fallbackRewrite = "Could you rephrase your question without asking the AI to ignore its guidelines?"

// topicRewrites maps keywords found in blocked prompts to a safe topic
// the user probably meant to ask about. First hit wins.
var topicRewrites = []struct {
	keyword string
	topic   string
}{
	{"hacking", "computer security and ethical hacking principles"},
	{"password", "password security best practices"},
	{"jailbreak", "AI safety guidelines and ethical AI use"},
	{"system prompt", "how AI assistants are designed"},
	{"secret", "information security principles"},
	{"virus", "cybersecurity and malware protection"},
	{"sql", "database security best practices"},
	{"attack", "cybersecurity fundamentals"},
}

// SuggestRewrite proposes a harmless reformulation of a blocked prompt.
// It keys on the first recognized topic keyword; prompts with no
// salvageable topic get a generic nudge instead.
func SuggestRewrite(prompt string) string {
	lowered := strings.ToLower(prompt)
	for _, tr := range topicRewrites {
		if strings.Contains(lowered, tr.keyword) {
			return fmt.Sprintf("Can you explain %s?", tr.topic)
		}
	}
	return fallbackRewrite
}
