package prescreen

// Action is a check's decision about a prompt.
type Action string

const (
	ActionPass  Action = "pass"
	ActionFlag  Action = "flag"
	ActionBlock Action = "block"
)

// Finding is returned by each check.
type Finding struct {
	Action     Action
	CheckName  string
	Message    string
	Detections int
}

// Check inspects prompt text locally, before anything is spent on a
// remote call.
type Check interface {
	Name() string
	Inspect(text string) Finding
}

// Chain runs checks in order, stopping on the first Block.
type Chain struct {
	checks []Check
}

// NewChain creates a check chain from the given checks.
func NewChain(checks ...Check) *Chain {
	return &Chain{checks: checks}
}

// Run executes all checks in order. Returns all findings and a pointer
// to the first blocking finding (nil if no check blocked).
func (c *Chain) Run(text string) ([]Finding, *Finding) {
	var findings []Finding
	for _, chk := range c.checks {
		f := chk.Inspect(text)
		findings = append(findings, f)
		if f.Action == ActionBlock {
			return findings, &f
		}
	}
	return findings, nil
}
