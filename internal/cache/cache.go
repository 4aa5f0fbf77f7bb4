package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/promptguard/gateway/internal/verdict"
)

const keyPrefix = "guard:cache:"

// Cache remembers canonical verdicts for identical prompts. Lookups go
// to process memory first and Redis second; with no Redis client, or
// during a Redis outage, it degrades to memory-only rather than
// failing the request. Entries are stored marshaled so every read
// hands out an independent copy.
type Cache struct {
	mu      sync.Mutex
	local   map[string]entry
	rdb     *redis.Client
	ttl     time.Duration
	maxSize int
}

type entry struct {
	payload   []byte
	expiresAt time.Time
}

// New builds a cache. rdb may be nil. maxSize bounds the local layer.
func New(rdb *redis.Client, ttl time.Duration, maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &Cache{
		local:   make(map[string]entry),
		rdb:     rdb,
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// Key returns the digest a prompt is cached under.
func Key(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// Get looks the prompt up, memory first, Redis second. Redis hits are
// copied back into the local layer.
func (c *Cache) Get(ctx context.Context, prompt string) (*verdict.Result, bool) {
	digest := Key(prompt)
	now := time.Now()

	c.mu.Lock()
	e, ok := c.local[digest]
	if ok && now.Before(e.expiresAt) {
		c.mu.Unlock()
		return decode(e.payload)
	}
	if ok {
		delete(c.local, digest)
	}
	c.mu.Unlock()

	if c.rdb == nil {
		return nil, false
	}
	payload, err := c.rdb.Get(ctx, keyPrefix+digest).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Debug("redis cache read failed", "error", err)
		}
		return nil, false
	}

	c.mu.Lock()
	c.store(digest, payload, now)
	c.mu.Unlock()
	return decode(payload)
}

// Put records the verdict for the prompt in both layers.
func (c *Cache) Put(ctx context.Context, prompt string, res *verdict.Result) {
	payload, err := json.Marshal(res)
	if err != nil {
		return
	}
	digest := Key(prompt)

	c.mu.Lock()
	c.store(digest, payload, time.Now())
	c.mu.Unlock()

	if c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, keyPrefix+digest, payload, c.ttl).Err(); err != nil {
		slog.Debug("redis cache write failed", "error", err)
	}
}

// Size reports how many entries the local layer holds.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.local)
}

// store inserts into the local layer. Expired entries are dropped when
// the budget is hit; if that frees nothing, an arbitrary entry goes.
// Callers hold mu.
func (c *Cache) store(digest string, payload []byte, now time.Time) {
	if len(c.local) >= c.maxSize {
		for k, e := range c.local {
			if now.After(e.expiresAt) {
				delete(c.local, k)
			}
		}
	}
	if len(c.local) >= c.maxSize {
		for k := range c.local {
			delete(c.local, k)
			break
		}
	}
	c.local[digest] = entry{payload: payload, expiresAt: now.Add(c.ttl)}
}

func decode(payload []byte) (*verdict.Result, bool) {
	var res verdict.Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, false
	}
	return &res, true
}
