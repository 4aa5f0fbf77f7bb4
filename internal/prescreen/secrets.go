package prescreen

import (
	"fmt"
	"regexp"
)

type secretPattern struct {
	name  string
	regex *regexp.Regexp
}

// secretPatterns match credential material. A key that reaches the
// detector or a model provider is a key that leaked, so these block
// before any remote call.
var secretPatterns = []secretPattern{
	{"AWS Access Key", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"GCP Service Account Key", regexp.MustCompile(`"private_key":\s*"-----BEGIN`)},
	{"GitHub Token", regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`)},
	{"Stripe Secret Key", regexp.MustCompile(`sk_live_[A-Za-z0-9]{24,}`)},
	{"Private Key", regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA )?PRIVATE KEY-----`)},
	{"Connection String", regexp.MustCompile(`(?:postgres|mysql|mongodb|redis)://[^\s]+`)},
	{"JWT Token", regexp.MustCompile(`eyJ[A-Za-z0-9\-_]+\.eyJ[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+`)},
}

// SecretsCheck blocks prompts that contain credential material.
type SecretsCheck struct{}

func (SecretsCheck) Name() string { return "secrets" }

func (SecretsCheck) Inspect(text string) Finding {
	count := 0
	first := ""
	for _, p := range secretPatterns {
		n := len(p.regex.FindAllStringIndex(text, -1))
		if n > 0 && first == "" {
			first = p.name
		}
		count += n
	}
	if count == 0 {
		return Finding{Action: ActionPass, CheckName: "secrets"}
	}
	return Finding{
		Action:     ActionBlock,
		CheckName:  "secrets",
		Message:    fmt.Sprintf("prompt contains credential material (%s)", first),
		Detections: count,
	}
}
