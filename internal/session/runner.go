package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SnapshotSink receives the influence state after every applied tick.
// Implementations must not block.
type SnapshotSink interface {
	Broadcast(Snapshot)
}

// Runner drives Session.Tick from a ticker bound to a context.
type Runner struct {
	session  *Session
	interval time.Duration
	sinks    []SnapshotSink
	logger   zerolog.Logger
}

// NewRunner ticks at rate Hz; a non-positive rate means 60.
func NewRunner(session *Session, rate int, logger zerolog.Logger, sinks ...SnapshotSink) *Runner {
	if rate <= 0 {
		rate = 60
	}
	return &Runner{
		session:  session,
		interval: time.Second / time.Duration(rate),
		sinks:    sinks,
		logger:   logger.With().Str("component", "runner").Logger(),
	}
}

func (r *Runner) Interval() time.Duration {
	return r.interval
}

// Run ticks until ctx is done and then deactivates the session, so
// nothing outlives the loop.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	defer r.session.Deactivate()

	r.logger.Debug().Dur("interval", r.interval).Msg("Tick loop started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug().Msg("Tick loop stopped")
			return nil
		case now := <-ticker.C:
			if !r.session.Tick(now) || len(r.sinks) == 0 {
				continue
			}
			snap := r.session.Snapshot()
			for _, sink := range r.sinks {
				sink.Broadcast(snap)
			}
		}
	}
}
