package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/promptguard/gateway/internal/audit"
	"github.com/promptguard/gateway/internal/auth"
	"github.com/promptguard/gateway/internal/cache"
	"github.com/promptguard/gateway/internal/config"
	"github.com/promptguard/gateway/internal/filecheck"
	"github.com/promptguard/gateway/internal/httputil"
	"github.com/promptguard/gateway/internal/llm"
	"github.com/promptguard/gateway/internal/policy"
	"github.com/promptguard/gateway/internal/prescreen"
	"github.com/promptguard/gateway/internal/session"
	"github.com/promptguard/gateway/internal/telemetry"
	"github.com/promptguard/gateway/internal/threat"
	"github.com/promptguard/gateway/internal/verdict"
	"golang.org/x/sync/errgroup"
)

const gatewayName = "PromptGuard - Secure AI Gateway"

// retryNotice is the reply attached to an approved verdict when every
// upstream provider failed. The verdict itself is preserved.
const retryNotice = "I encountered an issue while processing your request. Please try again or rephrase your question."

// Handler holds dependencies for the gateway HTTP handlers.
type Handler struct {
	cfg      func() *config.Config
	runner   *session.Runner
	sessions *session.Registry
	chain    *prescreen.Chain
	policies *policy.Evaluator
	forward  *llm.Router
	audit    *audit.Store
	metrics  *telemetry.Metrics
	version  string
	started  time.Time
}

// NewHandler builds the handler set. chain, policies, forward, audit
// and metrics may each be nil to disable the corresponding stage.
func NewHandler(cfg func() *config.Config, runner *session.Runner, sessions *session.Registry, chain *prescreen.Chain, policies *policy.Evaluator, forward *llm.Router, auditStore *audit.Store, metrics *telemetry.Metrics, version string) *Handler {
	return &Handler{
		cfg:      cfg,
		runner:   runner,
		sessions: sessions,
		chain:    chain,
		policies: policies,
		forward:  forward,
		audit:    auditStore,
		metrics:  metrics,
		version:  version,
		started:  time.Now(),
	}
}

type analyzeRequest struct {
	Prompt      string                 `json:"prompt"`
	Attachments []filecheck.Attachment `json:"attachments"`
}

// analyzeResponse is the canonical result envelope returned by the
// analyze endpoints.
type analyzeResponse struct {
	RequestID string `json:"request_id"`
	CacheHit  bool   `json:"cache_hit"`
	*verdict.Result
}

// Analyze handles POST /api/analyze: the full guarded flow from local
// validation through the detector verdict to the screened model reply.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	req, ok := h.decodeAnalyzeRequest(w, r, reqID)
	if !ok {
		return
	}

	if h.metrics != nil {
		h.metrics.InFlight.Inc()
		defer h.metrics.InFlight.Dec()
	}

	if !h.prescreen(w, reqID, id.ClientID, req.Prompt) {
		return
	}

	m := h.sessions.Get(id.ClientID)
	res, flags, err := h.runner.Run(r.Context(), m, req.Prompt, len(req.Attachments) > 0)
	if err != nil {
		h.writeRunError(w, reqID, err)
		return
	}
	if !flags.Current {
		httputil.WriteSupersededError(w, reqID, "Request superseded by a newer analysis from the same client")
		return
	}

	switch res.Status {
	case verdict.StatusBlocked:
		if res.Message == "" {
			res.Message = threat.DefaultBlockReason
		}
		if res.Suggestion == "" {
			res.Suggestion = threat.SuggestRewrite(req.Prompt)
		}
	case verdict.StatusApproved:
		if h.policies != nil && h.policies.Enabled() {
			if allowed, reason := h.policies.Gate(r.Context(), res, id.ClientID); !allowed {
				slog.Warn("approved verdict denied by policy",
					"request_id", reqID,
					"client_id", id.ClientID,
					"reason", reason,
				)
				res.Status = verdict.StatusBlocked
				res.Message = reason
				if res.Message == "" {
					res.Message = "Blocked by deployment policy"
				}
			}
		}
	}

	if res.Status == verdict.StatusApproved && res.Response == "" && h.forward != nil && h.cfg().Forward.Enabled {
		h.completeApproved(r.Context(), reqID, res, req.Prompt)
	}

	h.attachFileAnalysis(res, req.Attachments)
	h.record("analyze", reqID, id.ClientID, req.Prompt, res, flags, receivedAt)

	writeJSON(w, http.StatusOK, analyzeResponse{RequestID: reqID, CacheHit: flags.CacheHit, Result: res})
}

// AnalyzeRisk handles POST /api/analyze/risk: decision only, no policy
// gate and no model forward. Risk probes run against a throwaway
// session so they never displace the caller's current analysis.
func (h *Handler) AnalyzeRisk(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	req, ok := h.decodeAnalyzeRequest(w, r, reqID)
	if !ok {
		return
	}

	if h.metrics != nil {
		h.metrics.InFlight.Inc()
		defer h.metrics.InFlight.Dec()
	}

	res, flags, err := h.runner.Run(r.Context(), session.NewManager(), req.Prompt, false)
	if err != nil {
		h.writeRunError(w, reqID, err)
		return
	}

	h.record("risk", reqID, id.ClientID, req.Prompt, res, flags, receivedAt)
	writeJSON(w, http.StatusOK, analyzeResponse{RequestID: reqID, CacheHit: flags.CacheHit, Result: res})
}

type batchRequest struct {
	Prompts []string `json:"prompts"`
}

type batchItem struct {
	Prompt string   `json:"prompt,omitempty"`
	Status string   `json:"status,omitempty"`
	Risk   *float64 `json:"risk,omitempty"`
	Error  string   `json:"error,omitempty"`
}

type batchResponse struct {
	RequestID   string      `json:"request_id"`
	Results     []batchItem `json:"results"`
	TotalTimeMs int64       `json:"total_time_ms"`
}

// AnalyzeBatch handles POST /api/analyze/batch: concurrent decision-only
// scoring for up to the configured number of prompts. Invalid items
// report in place instead of failing the batch.
func (h *Handler) AnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, reqID, "Not authenticated")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return
	}
	defer r.Body.Close()

	var req batchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if len(req.Prompts) == 0 {
		httputil.WriteBadRequestError(w, reqID, "Prompts must be a non-empty list")
		return
	}
	if max := h.cfg().Limits.BatchMaxItems; len(req.Prompts) > max {
		httputil.WriteBadRequestError(w, reqID, fmt.Sprintf("Maximum %d prompts per batch", max))
		return
	}

	if h.metrics != nil {
		h.metrics.InFlight.Inc()
		defer h.metrics.InFlight.Dec()
	}

	results := make([]batchItem, len(req.Prompts))
	g, ctx := errgroup.WithContext(r.Context())
	for i, prompt := range req.Prompts {
		g.Go(func() error {
			res, flags, err := h.runner.Run(ctx, session.NewManager(), prompt, false)
			if err != nil {
				if ctx.Err() != nil {
					return err
				}
				results[i] = batchItem{Error: "Invalid prompt"}
				return nil
			}
			risk := res.Aggregate
			results[i] = batchItem{Prompt: prompt, Status: string(res.Status), Risk: &risk}
			h.record("batch", reqID, id.ClientID, prompt, res, flags, receivedAt)
			return nil
		})
	}
	// The only group error is a dead request context, so there is
	// nobody left to answer.
	if err := g.Wait(); err != nil {
		return
	}

	writeJSON(w, http.StatusOK, batchResponse{
		RequestID:   reqID,
		Results:     results,
		TotalTimeMs: time.Since(receivedAt).Milliseconds(),
	})
}

type healthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Gateway       string            `json:"gateway"`
	Timestamp     string            `json:"timestamp"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Dependencies  map[string]string `json:"dependencies,omitempty"`
}

// Health handles GET /api/health. It reports passively observed
// dependency state and never spends a detector or provider call on a
// probe.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "operational"
	deps := map[string]string{}

	if h.audit != nil {
		if err := h.audit.Ping(r.Context()); err != nil {
			deps["database"] = "unreachable"
			status = "degraded"
		}
	}
	if h.forward != nil {
		for provider, state := range h.forward.Health().States() {
			if state == "open" {
				deps["provider:"+provider] = "circuit open"
				status = "degraded"
			}
		}
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:        status,
		Version:       h.version,
		Gateway:       gatewayName,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Dependencies:  deps,
	})
}

func (h *Handler) decodeAnalyzeRequest(w http.ResponseWriter, r *http.Request, reqID string) (analyzeRequest, bool) {
	var req analyzeRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteBadRequestError(w, reqID, "Failed to read request body")
		return req, false
	}
	defer r.Body.Close()

	if err := json.Unmarshal(body, &req); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return req, false
	}
	return req, true
}

// prescreen runs the local check chain. A blocking finding answers the
// request with 451 and reports false.
func (h *Handler) prescreen(w http.ResponseWriter, reqID, clientID, prompt string) bool {
	if h.chain == nil {
		return true
	}
	findings, blocked := h.chain.Run(prompt)
	for _, f := range findings {
		if f.Action == prescreen.ActionFlag && h.metrics != nil {
			h.metrics.RecordPrescreenAction(f.CheckName, "flag")
		}
	}
	if blocked == nil {
		return true
	}

	slog.Warn("prompt blocked by prescreen",
		"request_id", reqID,
		"check", blocked.CheckName,
		"detections", blocked.Detections,
		"client_id", clientID,
	)
	if h.metrics != nil {
		h.metrics.RecordPrescreenAction(blocked.CheckName, string(blocked.Action))
	}
	httputil.WriteContentBlockedError(w, reqID, blocked.Message)
	return false
}

// writeRunError maps runner errors onto HTTP responses. Non-validation
// errors only occur when the request context is already dead, so there
// is nobody left to write to.
func (h *Handler) writeRunError(w http.ResponseWriter, reqID string, err error) {
	switch {
	case errors.Is(err, session.ErrEmptyInput):
		httputil.WriteBadRequestError(w, reqID, "Prompt cannot be empty")
	case errors.Is(err, session.ErrInputTooLarge):
		httputil.WriteBadRequestError(w, reqID, fmt.Sprintf("Prompt exceeds %d character limit", h.cfg().Limits.MaxPromptChars))
	}
}

// completeApproved forwards an approved prompt upstream and attaches
// the screened reply.
func (h *Handler) completeApproved(ctx context.Context, reqID string, res *verdict.Result, prompt string) {
	comp, err := h.forward.Forward(ctx, llm.Request{Prompt: prompt})
	if err != nil {
		slog.Error("model completion failed", "request_id", reqID, "error", err)
		res.Response = retryNotice
		return
	}

	screened, ok := prescreen.ScreenReply(comp.Text)
	if !ok {
		slog.Warn("model reply withheld",
			"request_id", reqID,
			"provider", comp.Provider,
			"model", comp.Model,
		)
	}
	res.Response = screened
}

// attachFileAnalysis adds attachment metadata verdicts under the
// file_analysis aux key.
func (h *Handler) attachFileAnalysis(res *verdict.Result, atts []filecheck.Attachment) {
	assessments := filecheck.AssessAll(atts, h.cfg().Limits.MaxAttachmentBytes)
	if assessments == nil {
		return
	}
	payload, _ := json.Marshal(assessments)
	if res.Aux == nil {
		res.Aux = make(map[string]json.RawMessage)
	}
	res.Aux["file_analysis"] = payload
}

// record emits the audit entry, metrics and the completion log line for
// one settled analysis.
func (h *Handler) record(endpoint, reqID, clientID, prompt string, res *verdict.Result, flags session.Flags, receivedAt time.Time) {
	duration := time.Since(receivedAt)
	cacheLabel := "miss"
	if flags.CacheHit {
		cacheLabel = "hit"
	}

	if h.audit != nil {
		h.audit.Record(audit.Entry{
			RequestID:      reqID,
			ClientID:       clientID,
			Endpoint:       endpoint,
			PromptDigest:   cache.Key(prompt),
			PromptChars:    utf8.RuneCountInString(prompt),
			Status:         string(res.Status),
			RiskLevel:      string(res.RiskLevel),
			ThreatCategory: string(res.ThreatCategory),
			Confidence:     res.Confidence,
			CacheHit:       flags.CacheHit,
			ElapsedMs:      res.ElapsedMs,
		})
	}

	if h.metrics != nil {
		h.metrics.RecordAnalysis(telemetry.AnalysisLabels{
			Endpoint:       endpoint,
			Status:         string(res.Status),
			RiskLevel:      string(res.RiskLevel),
			ThreatCategory: string(res.ThreatCategory),
			Cache:          cacheLabel,
			DurationMs:     float64(duration.Milliseconds()),
			RiskScore:      res.Aggregate,
		})
	}

	slog.Info("analysis completed",
		"request_id", reqID,
		"client_id", clientID,
		"endpoint", endpoint,
		"status", res.Status,
		"risk_level", res.RiskLevel,
		"cache_hit", flags.CacheHit,
		"duration_ms", duration.Milliseconds(),
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
