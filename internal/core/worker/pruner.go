// Package worker holds background maintenance workers.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/harvester/internal/infra/storage"
)

// Pruner deletes scrape audit rows past their retention period. Audit rows
// grow with every request and nothing else ever removes them.
type Pruner struct {
	retention time.Duration
	logs      storage.ScrapeLogRepository
	log       *slog.Logger
}

// NewPruner creates a pruner. A retention of zero disables it.
func NewPruner(retention time.Duration, logs storage.ScrapeLogRepository, log *slog.Logger) *Pruner {
	return &Pruner{
		retention: retention,
		logs:      logs,
		log:       log,
	}
}

// Start runs the pruner loop until the context is cancelled.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // retention disabled
	}

	interval := min(p.retention/10, time.Hour)
	interval = max(interval, time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.retention)

	deleted, err := p.logs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.log.Error("failed to prune scrape logs", "cutoff", cutoff, "error", err)
		return
	}
	if deleted > 0 {
		p.log.Info("pruned scrape logs", "deleted", deleted, "cutoff", cutoff)
	}
}
