package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/promptguard/gateway/internal/threat"
	"github.com/promptguard/gateway/internal/verdict"
)

// Validation failures reject a request before any session starts and
// before anything goes over the wire.
var (
	ErrEmptyInput    = errors.New("empty input")
	ErrInputTooLarge = errors.New("input too large")
)

// Failure messages carried by synthetic error results.
const (
	msgUnavailable = "The analysis service could not be reached. Please try again."
	msgUnreadable  = "The analysis service returned an unreadable response."
)

// Analyzer is the remote scoring call the runner depends on.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string) ([]byte, error)
}

// ResultCache remembers settled verdicts for identical prompts.
type ResultCache interface {
	Get(ctx context.Context, prompt string) (*verdict.Result, bool)
	Put(ctx context.Context, prompt string, res *verdict.Result)
}

// Flags describes how a run settled.
type Flags struct {
	// Current reports whether the session still belonged to this
	// request when it settled.
	Current bool
	// CacheHit reports whether the verdict came from the cache rather
	// than a fresh detector call.
	CacheHit bool
}

// Runner executes one analysis end to end: local validation, session
// start, cache lookup, remote call, normalization, threat
// categorization. Remote and decoding failures never escape; they
// settle the session as a terminal error result.
type Runner struct {
	analyzer   Analyzer
	classifier *threat.Classifier
	cache      ResultCache
	maxChars   int
}

// NewRunner builds a runner. cache may be nil to disable verdict
// caching. maxChars is the prompt length ceiling in characters, not
// bytes.
func NewRunner(analyzer Analyzer, classifier *threat.Classifier, cache ResultCache, maxChars int) *Runner {
	return &Runner{
		analyzer:   analyzer,
		classifier: classifier,
		cache:      cache,
		maxChars:   maxChars,
	}
}

// Validate applies the local input checks. A submission needs text or
// at least one attachment, and text must fit the length ceiling.
func (r *Runner) Validate(prompt string, hasAttachments bool) error {
	if strings.TrimSpace(prompt) == "" && !hasAttachments {
		return ErrEmptyInput
	}
	if utf8.RuneCountInString(prompt) > r.maxChars {
		return fmt.Errorf("%w: prompt exceeds %d characters", ErrInputTooLarge, r.maxChars)
	}
	return nil
}

// Run performs one analysis under the client's session manager.
//
// The returned result describes this request's outcome even when a
// newer request superseded it mid-flight; Flags.Current reports whether
// the session still belonged to this request when it settled, and stale
// outcomes must not be shown as current analysis state. Validation
// errors are returned before any session starts. A cancelled context
// aborts the session and returns the context error; every other
// failure settles as a Status error result, never as a returned error.
func (r *Runner) Run(ctx context.Context, m *Manager, prompt string, hasAttachments bool) (*verdict.Result, Flags, error) {
	if err := r.Validate(prompt, hasAttachments); err != nil {
		return nil, Flags{}, err
	}

	token := m.Begin()

	if r.cache != nil {
		if cached, ok := r.cache.Get(ctx, prompt); ok {
			return cached, Flags{Current: m.Resolve(token, cached), CacheHit: true}, nil
		}
	}

	raw, err := r.analyzer.Analyze(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			m.Cancel(token)
			return nil, Flags{}, ctx.Err()
		}
		slog.Warn("detector call failed", "error", err)
		res, current := m.Fail(token, msgUnavailable)
		return res, Flags{Current: current}, nil
	}

	res, err := verdict.Normalize(raw)
	if err != nil {
		slog.Warn("detector response rejected", "error", err)
		res, current := m.Fail(token, msgUnreadable)
		return res, Flags{Current: current}, nil
	}

	if res.Status == verdict.StatusBlocked {
		res.ThreatCategory = r.classifier.Classify(prompt)
	}
	current := m.Resolve(token, res)

	// Error verdicts are transient and never cached.
	if r.cache != nil && res.Status != verdict.StatusError {
		r.cache.Put(ctx, prompt, res)
	}
	return res, Flags{Current: current}, nil
}
