package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Purgeable is a store that can delete its expired records.
type Purgeable interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Result reports one purge run.
type Result struct {
	DeletedCount int64         `json:"deleted_count"`
	PurgedAt     time.Time     `json:"cleanup_timestamp"`
	Duration     time.Duration `json:"-"`
}

// Purger deletes expired records from a store.
type Purger struct {
	store  Purgeable
	now    func() time.Time
	logger *slog.Logger
}

// NewPurger creates a purger for store.
func NewPurger(store Purgeable) *Purger {
	return &Purger{
		store:  store,
		now:    time.Now,
		logger: slog.Default().With("component", "store.retention"),
	}
}

// Purge runs one purge and reports the number of deleted records.
func (p *Purger) Purge(ctx context.Context) (*Result, error) {
	start := p.now()

	deleted, err := p.store.PurgeExpired(ctx)
	result := &Result{
		DeletedCount: deleted,
		PurgedAt:     start.UTC(),
		Duration:     p.now().Sub(start),
	}
	if err != nil {
		return result, fmt.Errorf("purge expired records: %w", err)
	}

	if deleted > 0 {
		p.logger.InfoContext(ctx, "expired records purged",
			"deleted_count", deleted,
			"duration", result.Duration,
		)
	} else {
		p.logger.DebugContext(ctx, "no expired records to purge")
	}
	return result, nil
}
