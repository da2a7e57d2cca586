// Package cache implements the two-tier response cache: a fast volatile
// key-value tier in front of a durable document tier with absolute-expiry
// semantics. Tier 1 failing (at startup or mid-session) is never fatal;
// the cache degrades to tier-2-only operation and logs once.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Document is one tier-2 entry. ExpiresAt is authoritative: the primary
// read path never returns a document past it, while the stale path
// ignores it entirely.
type Document struct {
	Key       string
	Payload   []byte
	OwnerID   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// KeyValueStore is the fast volatile tier, injected at construction.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePattern removes keys matching a glob pattern in bounded
	// scan batches and reports how many were deleted.
	DeletePattern(ctx context.Context, pattern string, batch int64) (int, error)
}

// DocumentStore is the durable fallback tier, injected at construction.
// Get returns (nil, nil) for an absent key. Pattern scans are not
// supported here; only exact-key and owner-scoped deletes exist.
type DocumentStore interface {
	Get(ctx context.Context, key string) (*Document, error)
	Upsert(ctx context.Context, doc Document) error
	Delete(ctx context.Context, key string) error
	DeleteByOwner(ctx context.Context, ownerID string) (int64, error)
}

// Tiered reads through tier 1 into tier 2 and writes to both.
type Tiered struct {
	fast    KeyValueStore // nil when tier 1 never came up
	durable DocumentStore
	logger  *slog.Logger

	degradedOnce sync.Once

	// now is swappable so expiry tests do not sleep.
	now func() time.Time
}

func NewTiered(fast KeyValueStore, durable DocumentStore, logger *slog.Logger) *Tiered {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tiered{fast: fast, durable: durable, logger: logger, now: time.Now}
}

func (c *Tiered) tier1Down(err error) {
	c.degradedOnce.Do(func() {
		c.logger.Warn("tier-1 cache unavailable, degrading to tier-2-only", slog.String("error", err.Error()))
	})
}

// Get returns the cached payload for key, or a miss. Tier 1 is consulted
// first; a tier-2 hit that is still fresh repopulates tier 1 with the
// remaining time to live. An expired tier-2 entry reports a miss and is
// evicted from tier 1; the document itself stays until the expiry sweep
// so GetStale can still serve it through an upstream outage.
func (c *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if c.fast != nil {
		payload, ok, err := c.fast.Get(ctx, key)
		if err != nil {
			c.tier1Down(err)
		} else if ok {
			return payload, true, nil
		}
	}

	doc, err := c.durable.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("tier-2 get %s: %w", key, err)
	}
	if doc == nil {
		return nil, false, nil
	}

	remaining := doc.ExpiresAt.Sub(c.now())
	if remaining <= 0 {
		if c.fast != nil {
			if err := c.fast.Delete(ctx, key); err != nil {
				c.tier1Down(err)
			}
		}
		return nil, false, nil
	}

	if c.fast != nil {
		if err := c.fast.Set(ctx, key, doc.Payload, remaining); err != nil {
			c.tier1Down(err)
		}
	}
	return doc.Payload, true, nil
}

// GetStale reads tier 2 only, ignoring expiry. Used exclusively as a
// degraded-mode fallback when a live upstream fetch fails.
func (c *Tiered) GetStale(ctx context.Context, key string) ([]byte, bool, error) {
	doc, err := c.durable.Get(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("tier-2 stale get %s: %w", key, err)
	}
	if doc == nil {
		return nil, false, nil
	}
	return doc.Payload, true, nil
}

// Set writes both tiers. Tier-1 failure is silent (degraded-mode log
// once); tier-2 failure is logged but also non-fatal to the caller.
func (c *Tiered) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	c.SetOwned(ctx, key, payload, ttl, "")
}

// SetOwned is Set with an owning-user id recorded on the tier-2 document
// so the entry participates in owner-scoped bulk invalidation.
func (c *Tiered) SetOwned(ctx context.Context, key string, payload []byte, ttl time.Duration, ownerID string) {
	if c.fast != nil {
		if err := c.fast.Set(ctx, key, payload, ttl); err != nil {
			c.tier1Down(err)
		}
	}

	now := c.now()
	doc := Document{
		Key:       key,
		Payload:   payload,
		OwnerID:   ownerID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := c.durable.Upsert(ctx, doc); err != nil {
		c.logger.Warn("tier-2 cache write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// Invalidate deletes key from both tiers.
func (c *Tiered) Invalidate(ctx context.Context, key string) error {
	if c.fast != nil {
		if err := c.fast.Delete(ctx, key); err != nil {
			c.tier1Down(err)
		}
	}
	if err := c.durable.Delete(ctx, key); err != nil {
		return fmt.Errorf("tier-2 invalidate %s: %w", key, err)
	}
	return nil
}

// InvalidatePattern deletes tier-1 keys matching a glob pattern. Tier 2
// is not pattern-scanned; use Invalidate or InvalidateOwnerScope there.
func (c *Tiered) InvalidatePattern(ctx context.Context, pattern string) error {
	if c.fast == nil {
		return nil
	}
	n, err := c.fast.DeletePattern(ctx, pattern, 100)
	if err != nil {
		c.tier1Down(err)
		return nil
	}
	c.logger.Debug("invalidated tier-1 pattern", slog.String("pattern", pattern), slog.Int("deleted", n))
	return nil
}

// InvalidateOwnerScope removes the user's tier-1 keys by pattern and
// their tier-2 documents by exact owner match.
func (c *Tiered) InvalidateOwnerScope(ctx context.Context, ownerID string, pattern string) error {
	if err := c.InvalidatePattern(ctx, pattern); err != nil {
		return err
	}
	n, err := c.durable.DeleteByOwner(ctx, ownerID)
	if err != nil {
		return fmt.Errorf("tier-2 owner invalidate %s: %w", ownerID, err)
	}
	c.logger.Debug("invalidated owner scope", slog.String("owner", ownerID), slog.Int64("deleted", n))
	return nil
}
