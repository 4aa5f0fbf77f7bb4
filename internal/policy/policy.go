package policy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"github.com/promptguard/gateway/internal/config"
	"github.com/promptguard/gateway/internal/verdict"
)

// Input is the document deployment policies evaluate before an approved
// prompt is forwarded to a model provider.
type Input struct {
	Verdict InputVerdict `json:"verdict"`
	Client  InputClient  `json:"client"`
	Time    InputTime    `json:"time"`
}

// InputVerdict is the analysis outcome in policy-friendly form.
type InputVerdict struct {
	Status         string `json:"status"`
	RiskLevel      string `json:"risk_level"`
	Confidence     int    `json:"confidence"`
	ThreatCategory string `json:"threat_category"`
}

// InputClient identifies who is asking.
type InputClient struct {
	ID string `json:"id"`
}

// InputTime lets policies express office-hours style rules.
type InputTime struct {
	Hour int    `json:"hour"`
	Day  string `json:"day"`
}

// Evaluator gates the chat path with OPA. A nil prepared query, a load
// failure or an evaluation error all deny: a broken gate must never
// become an open gate.
type Evaluator struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	cfg      func() config.PolicyConfig
}

// NewEvaluator creates a policy evaluator. Call Load to compile the
// bundle before serving traffic.
func NewEvaluator(cfg func() config.PolicyConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Enabled reports whether the gate participates in request handling.
func (e *Evaluator) Enabled() bool { return e.cfg().Enabled }

// Load compiles all .rego modules from the configured bundle directory.
func (e *Evaluator) Load() error {
	cfg := e.cfg()
	modules, err := loadRegoDir(cfg.BundlePath)
	if err != nil {
		return fmt.Errorf("load rego bundle: %w", err)
	}
	if len(modules) == 0 {
		slog.Warn("no rego files in policy bundle", "path", cfg.BundlePath)
		return nil
	}
	if err := e.prepare(modules); err != nil {
		return err
	}
	slog.Info("deployment policies loaded", "modules", len(modules))
	return nil
}

// LoadFromModules compiles policies from in-memory sources. Tests use
// this to avoid touching the filesystem.
func (e *Evaluator) LoadFromModules(modules map[string]string) error {
	return e.prepare(modules)
}

func (e *Evaluator) prepare(modules map[string]string) error {
	opts := []func(*rego.Rego){
		rego.Query("[data.promptguard.policy.allow, data.promptguard.policy.reason]"),
	}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	e.mu.Lock()
	e.prepared = &prepared
	e.mu.Unlock()
	return nil
}

// Evaluate runs the policy against the given input.
func (e *Evaluator) Evaluate(ctx context.Context, input Input) (bool, string, error) {
	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()

	if prepared == nil {
		return false, "no policies loaded", nil
	}

	timeout := e.cfg().EvaluationTimeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		return false, "", fmt.Errorf("policy evaluation: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, "no policy result", nil
	}

	arr, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok || len(arr) < 2 {
		return false, "unexpected policy result format", nil
	}
	allowed, _ := arr[0].(bool)
	reason, _ := arr[1].(string)
	return allowed, reason, nil
}

// Gate decides whether an approved verdict may be forwarded to a model
// provider.
func (e *Evaluator) Gate(ctx context.Context, res *verdict.Result, clientID string) (bool, string) {
	now := time.Now().UTC()
	input := Input{
		Verdict: InputVerdict{
			Status:         string(res.Status),
			RiskLevel:      string(res.RiskLevel),
			Confidence:     res.Confidence,
			ThreatCategory: string(res.ThreatCategory),
		},
		Client: InputClient{ID: clientID},
		Time: InputTime{
			Hour: now.Hour(),
			Day:  now.Weekday().String(),
		},
	}

	allowed, reason, err := e.Evaluate(ctx, input)
	if err != nil {
		slog.Error("policy evaluation failed", "error", err)
		return false, "policy evaluation failed"
	}
	return allowed, reason
}

// loadRegoDir reads all .rego files from dir, keyed by file name.
func loadRegoDir(dir string) (map[string]string, error) {
	modules := make(map[string]string)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".rego" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		modules[entry.Name()] = string(data)
	}
	return modules, nil
}
