package signaling

import (
	"context"
	"log/slog"
	"time"
)

// ReaperMetrics receives sweep outcomes. *metrics.Collector satisfies
// this.
type ReaperMetrics interface {
	IncSessionsReclaimed(n int)
}

type noopReaperMetrics struct{}

func (noopReaperMetrics) IncSessionsReclaimed(int) {}

// Reaper periodically sweeps a Registry for sessions that have outlived
// their usefulness: empty of both host and clients, and older than
// MaxAge. It runs as one goroutine under the daemon's errgroup, the same
// shape used elsewhere for liveness-detection timers.
type Reaper struct {
	logger   *slog.Logger
	registry *Registry
	metrics  ReaperMetrics

	interval time.Duration
	maxAge   time.Duration
}

// ReaperOption configures optional Reaper behavior.
type ReaperOption func(*Reaper)

// WithReaperMetrics attaches a ReaperMetrics sink to the reaper.
func WithReaperMetrics(rm ReaperMetrics) ReaperOption {
	return func(rp *Reaper) {
		if rm != nil {
			rp.metrics = rm
		}
	}
}

// NewReaper builds a Reaper over registry. interval is how often it
// sweeps; maxAge is how long an empty session survives before reclaim.
func NewReaper(registry *Registry, interval, maxAge time.Duration, logger *slog.Logger, opts ...ReaperOption) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	rp := &Reaper{
		logger:   logger.With(slog.String("component", "reaper")),
		registry: registry,
		metrics:  noopReaperMetrics{},
		interval: interval,
		maxAge:   maxAge,
	}
	for _, opt := range opts {
		opt(rp)
	}
	return rp
}

// Run blocks, sweeping every interval until ctx is canceled. If a sweep is
// still in flight when the next tick fires -- which should not happen in
// practice since sweeps are synchronous and bounded by the session count,
// but could under an unusually large registry -- the tick is dropped
// rather than queued, so sweeps never pile up.
func (rp *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(rp.interval)
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
				rp.sweep(time.Now())
				busy <- struct{}{}
			default:
				rp.logger.Warn("sweep skipped: previous sweep still running")
			}
		}
	}
}

// sweep reclaims every eligible session in one pass.
func (rp *Reaper) sweep(now time.Time) {
	ids := rp.registry.SessionIDs()
	reclaimed := 0
	for _, id := range ids {
		if rp.registry.Reclaim(id, rp.maxAge, now) {
			reclaimed++
		}
	}
	if reclaimed > 0 {
		rp.metrics.IncSessionsReclaimed(reclaimed)
		rp.logger.Debug("sweep complete", slog.Int("reclaimed", reclaimed), slog.Int("scanned", len(ids)))
	}
}
