package authcore

import (
	"context"
	"time"
)

// StartReaper launches the background goroutine that periodically prunes
// expired refresh rows and expired denylist entries. Pruning is purely
// janitorial: expired rows are already inert, the reaper only reclaims
// their storage. Safe to call more than once; only the first call starts
// the goroutine. Close stops it.
func (e *Engine) StartReaper() {
	if e == nil || e.refreshStore == nil {
		return
	}
	e.reaperOnce.Do(func() {
		e.reaperWG.Add(1)
		go e.runReaper()
	})
}

func (e *Engine) runReaper() {
	defer e.reaperWG.Done()

	ticker := time.NewTicker(e.config.Reaper.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.reapOnce(context.Background())
		case <-e.reaperStop:
			return
		}
	}
}

func (e *Engine) reapOnce(ctx context.Context) {
	now := e.timeNow()

	pruned, err := e.refreshStore.PruneExpired(ctx, now)
	if err != nil {
		if e.warn != nil {
			e.warn("authcore: reaper refresh prune failed: %v", err)
		}
	} else if pruned > 0 {
		e.metrics.Add(MetricReaperRefreshPruned, uint64(pruned))
	}

	pruned, err = e.revocations.PruneExpired(ctx, now)
	if err != nil {
		if e.warn != nil {
			e.warn("authcore: reaper revocation prune failed: %v", err)
		}
	} else if pruned > 0 {
		e.metrics.Add(MetricReaperRevocationsPruned, uint64(pruned))
	}
}
