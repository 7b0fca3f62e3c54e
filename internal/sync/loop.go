// ABOUTME: Periodic sync loop: push, refresh and cleanup on a ticker
// ABOUTME: Local mutations and connectivity transitions trigger an early, rate-limited push

package sync

import (
	"context"
	"time"
)

// Run drives periodic sync until ctx ends. Each cycle pushes pending
// mutations, refreshes stale scopes and runs the daily cleanup.
func (c *Coordinator) Run(ctx context.Context) error {
	interval := c.settings.SyncInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.Cycle(ctx)
	for {
		var changed <-chan struct{}
		if c.net != nil {
			changed = c.net.Changed()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.Cycle(ctx)
		case <-c.nudge:
			if err := c.pushLim.Wait(ctx); err != nil {
				return ctx.Err()
			}
			c.push(ctx)
		case <-changed:
			if c.online(ctx) {
				c.logger.Info("server reachable again, syncing")
				c.Cycle(ctx)
			}
		}
	}
}

// Cycle runs one push, refresh and cleanup pass. Failures are logged and
// recorded in LastError.
func (c *Coordinator) Cycle(ctx context.Context) {
	c.push(ctx)
	if err := c.RefreshAll(ctx, false); err != nil {
		c.logger.Debug("refresh cycle incomplete", "err", err)
	}
	if _, err := c.Cleanup(ctx, false); err != nil {
		c.logger.Error("cleanup failed", "err", err)
		c.setLastError(err)
	}
}

func (c *Coordinator) push(ctx context.Context) {
	res, err := c.PushPendingMutations(ctx)
	if err != nil {
		c.logger.Debug("push cycle incomplete", "failed", res.Failed, "err", err)
	}
}
