package llm

import "context"

// Request is a provider-neutral completion request.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature *float64
}

// Completion is a provider-neutral completion result.
type Completion struct {
	Text             string
	Model            string
	Provider         string
	PromptTokens     int
	CompletionTokens int
}

// Adapter translates the gateway's canonical request shape to one provider's
// wire API and back.
type Adapter interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req Request) (*Completion, error)
}
