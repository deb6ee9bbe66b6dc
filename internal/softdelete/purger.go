package softdelete

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/tombstone/internal/model"
)

// Purger periodically hard-deletes records that have stayed soft deleted
// longer than a retention period.
type Purger struct {
	service   *Service
	types     []string
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPurger creates a purger for the given entity types. When types is
// empty it covers every type named in the service's registry.
func NewPurger(svc *Service, types []string, retention, interval time.Duration, logger *slog.Logger) *Purger {
	if len(types) == 0 {
		types = svc.Registry().Types()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Purger{
		service:   svc,
		types:     types,
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

// Start begins periodic purging. It runs an initial pass immediately, then
// on each tick.
func (p *Purger) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()
}

// Stop cancels the purger and waits for the current pass (if any) to finish.
func (p *Purger) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Purger) run(ctx context.Context) {
	p.PurgeOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.PurgeOnce(ctx)
		}
	}
}

// PurgeOnce hard-deletes every expired soft-deleted record and returns the
// keys it removed. Each entity type is purged in its own operation.
func (p *Purger) PurgeOnce(ctx context.Context) []model.Key {
	cutoff := p.service.now().Add(-p.retention)
	var purged []model.Key

	for _, typ := range p.types {
		var expired []model.Key
		for r, err := range p.service.store.QueryAll(ctx, model.RecordFilter{Type: typ, IncludeHidden: true, PageSize: p.service.opts.PageSize}) {
			if err != nil {
				p.logger.Error("purge scan failed", "type", typ, "error", err)
				expired = nil
				break
			}
			if r.IsVisible() || r.SoftDeletedAt == nil || r.SoftDeletedAt.After(cutoff) {
				continue
			}
			expired = append(expired, r.Key())
		}
		if len(expired) == 0 {
			continue
		}

		res := p.service.HardDeleteIfSoftDeleted(ctx, expired...)
		if !res.OK() {
			p.logger.Error("purge failed", "type", typ, "candidates", len(expired), "error", res.Err())
		}
		purged = append(purged, res.Affected...)
	}

	if len(purged) > 0 {
		p.logger.Info("purge completed", "types", len(p.types), "purged", len(purged))
	}
	return purged
}
