package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one analysis decision recorded for compliance review. The
// prompt itself is never stored, only its digest and length.
type Entry struct {
	RequestID      string
	ClientID       string
	Endpoint       string
	PromptDigest   string
	PromptChars    int
	Status         string
	RiskLevel      string
	ThreatCategory string
	Confidence     int
	CacheHit       bool
	ElapsedMs      int64
}

// Store persists analysis decisions to Postgres. Writes are
// fire-and-forget so an audit outage adds neither latency nor failures
// to the serving path. A nil Store or nil pool disables auditing.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps a pgx pool. pool may be nil.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping verifies database connectivity at startup.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Record inserts the entry asynchronously.
func (s *Store) Record(e Entry) {
	if s == nil || s.pool == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := s.pool.Exec(ctx,
			`INSERT INTO analysis_log
			 (request_id, client_id, endpoint, prompt_digest, prompt_chars,
			  status, risk_level, threat_category, confidence, cache_hit, elapsed_ms)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			e.RequestID, e.ClientID, e.Endpoint, e.PromptDigest, e.PromptChars,
			e.Status, e.RiskLevel, e.ThreatCategory, e.Confidence, e.CacheHit, e.ElapsedMs,
		)
		if err != nil {
			slog.Warn("audit insert failed", "error", err, "request_id", e.RequestID)
		}
	}()
}
