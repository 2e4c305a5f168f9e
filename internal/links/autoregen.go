package links

import (
	"context"
	"log/slog"
	"time"
)

// DefaultAutoRegenInterval is the default cadence of the auto-regeneration
// loop.
const DefaultAutoRegenInterval = 5 * time.Minute

// AutoRegenMetrics receives auto-regeneration sweep outcomes.
// *metrics.Collector satisfies this.
type AutoRegenMetrics interface {
	IncLinksRegenerated(reason string)
}

type noopAutoRegenMetrics struct{}

func (noopAutoRegenMetrics) IncLinksRegenerated(string) {}

// AutoRegenerator periodically re-evaluates every wallet-associated link:
// if its session has no host, or it has expired, it is regenerated and a
// notification is emitted recording why.
type AutoRegenerator struct {
	manager  *Manager
	sessions SessionLookup
	interval time.Duration
	logger   *slog.Logger
	metrics  AutoRegenMetrics
}

// AutoRegenOption configures optional AutoRegenerator behavior.
type AutoRegenOption func(*AutoRegenerator)

// WithAutoRegenMetrics attaches an AutoRegenMetrics sink to the loop.
func WithAutoRegenMetrics(arm AutoRegenMetrics) AutoRegenOption {
	return func(a *AutoRegenerator) {
		if arm != nil {
			a.metrics = arm
		}
	}
}

// NewAutoRegenerator builds an AutoRegenerator over manager.
func NewAutoRegenerator(manager *Manager, sessions SessionLookup, interval time.Duration, logger *slog.Logger, opts ...AutoRegenOption) *AutoRegenerator {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = DefaultAutoRegenInterval
	}
	a := &AutoRegenerator{
		manager:  manager,
		sessions: sessions,
		interval: interval,
		logger:   logger.With(slog.String("component", "auto_regen")),
		metrics:  noopAutoRegenMetrics{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run blocks, sweeping every interval until ctx is canceled. Like the
// reaper, a tick is skipped rather than queued if the previous sweep
// is still running.
func (a *AutoRegenerator) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	busy := make(chan struct{}, 1)
	busy <- struct{}{}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			select {
			case <-busy:
				a.sweep(ctx)
				busy <- struct{}{}
			default:
				a.logger.Warn("sweep skipped: previous sweep still running")
			}
		}
	}
}

// sweep inspects every wallet-associated link once.
func (a *AutoRegenerator) sweep(ctx context.Context) {
	links, err := a.manager.store.ListWalletLinks()
	if err != nil {
		a.logger.Error("list wallet links", slog.Any("error", err))
		return
	}

	now := time.Now()
	for _, link := range links {
		reason := a.evaluateReason(link, now)
		if reason == "" {
			continue
		}
		if _, err := a.manager.Regenerate(ctx, link.ID); err != nil {
			a.logger.Error("regenerate failed", slog.String("link_id", link.ID), slog.Any("error", err))
			continue
		}
		a.metrics.IncLinksRegenerated(reason)
		a.manager.notify("regenerated", link.ID, reason)
	}
}

// evaluateReason decides whether link needs regeneration and why, or
// returns "" if it does not.
func (a *AutoRegenerator) evaluateReason(link Link, now time.Time) string {
	if link.ExpiresAt != nil && now.After(*link.ExpiresAt) {
		return "expired"
	}

	snap, ok := a.sessions.Lookup(link.SessionID)
	if !ok || !snap.HasHost {
		return "inactive"
	}
	return ""
}
