package prescreen

import (
	"fmt"
	"regexp"
	"strings"
)

type piiPattern struct {
	name   string
	action Action
	regex  *regexp.Regexp
}

// piiPatterns match personal identifiers. Strong identifiers block
// before any remote call; contact details only flag, because plenty of
// legitimate prompts quote an email address or a phone number.
var piiPatterns = []piiPattern{
	{"US Social Security Number", ActionBlock, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"Email Address", ActionFlag, regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)},
	{"Phone Number", ActionFlag, regexp.MustCompile(`\b\(?\d{3}\)?[ .-]\d{3}[ .-]\d{4}\b`)},
}

// cardCandidate matches digit runs long enough to be a payment card.
// Candidates still have to pass the Luhn check before they count.
var cardCandidate = regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)

// PIICheck screens prompts for personal data before they leave the
// gateway.
type PIICheck struct{}

func (PIICheck) Name() string { return "pii" }

func (PIICheck) Inspect(text string) Finding {
	count := 0
	blocked := ""

	for _, candidate := range cardCandidate.FindAllString(text, -1) {
		digits := strings.Map(keepDigits, candidate)
		if len(digits) >= 13 && len(digits) <= 19 && luhnValid(digits) {
			count++
			if blocked == "" {
				blocked = "Payment Card Number"
			}
		}
	}

	for _, p := range piiPatterns {
		n := len(p.regex.FindAllStringIndex(text, -1))
		if n == 0 {
			continue
		}
		count += n
		if p.action == ActionBlock && blocked == "" {
			blocked = p.name
		}
	}

	if count == 0 {
		return Finding{Action: ActionPass, CheckName: "pii"}
	}
	if blocked != "" {
		return Finding{
			Action:     ActionBlock,
			CheckName:  "pii",
			Message:    fmt.Sprintf("prompt contains personal data (%s)", blocked),
			Detections: count,
		}
	}
	return Finding{Action: ActionFlag, CheckName: "pii", Detections: count}
}

func keepDigits(r rune) rune {
	if r >= '0' && r <= '9' {
		return r
	}
	return -1
}

// luhnValid reports whether digits passes the Luhn checksum. Bare digit
// runs are far too common in prompts to treat as card numbers without it.
func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
