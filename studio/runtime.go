package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/bannerstage-labs/bannerstage-go/internal/control"
	"github.com/bannerstage-labs/bannerstage-go/internal/orchestrator"
)

// runReadyTap folds agent readiness announcements into orchestrator state.
// Ready events for unknown ids are ignored; a renderer may still be emitting
// for a creative the operator already removed.
func runReadyTap(ctx context.Context, bus *control.Bus, orch *orchestrator.Orchestrator, logger *slog.Logger) {
	sub := bus.Subscribe()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, open := <-sub.C:
			if !open {
				return
			}
			switch msg.Action {
			case control.ActionReady:
				if msg.BannerID == "" {
					continue
				}
				if err := orch.SetReady(msg.BannerID); err != nil {
					continue
				}
				logger.Info("creative ready", "creative_id", msg.BannerID, "group_id", msg.GroupID)
			case control.ActionPlayPauseFailed:
				logger.Warn("play/pause failed in creative", "creative_id", msg.BannerID)
			}
		}
	}
}

const watchdogInterval = 500 * time.Millisecond

// runLoadWatchdog marks creatives errored when they stay in the loading state
// past the configured deadline. Timing starts when the watchdog first observes
// a creative loading, so a hard reload restarts the clock.
func runLoadWatchdog(ctx context.Context, orch *orchestrator.Orchestrator, timeout time.Duration, logger *slog.Logger) {
	firstSeen := make(map[string]time.Time)
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			loading := orch.Loading()
			current := make(map[string]bool, len(loading))
			for _, id := range loading {
				current[id] = true
				seen, ok := firstSeen[id]
				if !ok {
					firstSeen[id] = now
					continue
				}
				if now.Sub(seen) >= timeout {
					delete(firstSeen, id)
					if err := orch.SetErrored(id, "load timed out"); err != nil {
						continue
					}
					logger.Warn("creative load timed out", "creative_id", id, "timeout", timeout)
				}
			}
			for id := range firstSeen {
				if !current[id] {
					delete(firstSeen, id)
				}
			}
		}
	}
}
