// Package scheduler runs the stale-mission sweep: a periodic reconciliation
// job that reclaims a per-user mission-control entry stuck `running` with
// no recent activity, so a hung mission (a goroutine that panicked past its
// recover, or an I/O call that ignored its cancellation token) can never
// permanently block that user's next dispatch.
//
// Grounded on internal/cron, which drives its own recurring jobs with
// github.com/robfig/cron/v3; this package keeps that same driver but
// collapses its message/agent/webhook/custom job taxonomy down to the one
// job spec.md's crash-safety paragraph (§4.6) actually calls for.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// RunningMission mirrors bus.RunningMission. Kept as a plain struct (rather
// than an interface method returning bus.RunningMission directly) so this
// package never imports internal/bus — the caller adapts via RunningSnapshot.
type RunningMission struct {
	UserID         string
	StartedAt      time.Time
	LastActivityAt time.Time
}

// StaleSweeper periodically clears mission-control entries that have been
// running with no recorded activity for longer than StaleAfter. Its two
// collaborators are passed as plain functions rather than an interface so
// the caller can adapt internal/bus.Bus's methods (which return
// []bus.RunningMission, a distinct named type) with a one-line closure
// instead of a wrapper struct.
type StaleSweeper struct {
	runningSnapshot func() []RunningMission
	forceStop       func(userID string)
	staleAfter      time.Duration
	logger          *slog.Logger
	clock           func() time.Time

	cron *cron.Cron
}

// NewStaleSweeper constructs a sweeper. staleAfter is how long a mission may
// sit running with no Touch before it is reclaimed.
func NewStaleSweeper(runningSnapshot func() []RunningMission, forceStop func(userID string), staleAfter time.Duration, logger *slog.Logger) *StaleSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &StaleSweeper{
		runningSnapshot: runningSnapshot,
		forceStop:       forceStop,
		staleAfter:      staleAfter,
		logger:          logger,
		clock:           time.Now,
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
	}
}

// intervalSpec renders a time.Duration as an "@every" robfig/cron spec.
func intervalSpec(interval time.Duration) string {
	if interval <= 0 {
		interval = time.Minute
	}
	return "@every " + interval.String()
}

// Start schedules the sweep and begins running it in the background. It
// must be called at most once.
func (s *StaleSweeper) Start(ctx context.Context, interval time.Duration) error {
	_, err := s.cron.AddFunc(intervalSpec(interval), func() {
		s.sweepOnce(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.cron.Stop()
	}()
	return nil
}

// Stop halts the scheduler, waiting for any in-flight sweep to finish.
func (s *StaleSweeper) Stop() {
	<-s.cron.Stop().Done()
}

// sweepOnce scans every currently-running mission and force-stops any whose
// LastActivityAt is older than staleAfter.
func (s *StaleSweeper) sweepOnce(ctx context.Context) {
	now := s.clock()
	for _, m := range s.runningSnapshot() {
		if now.Sub(m.LastActivityAt) <= s.staleAfter {
			continue
		}
		s.logger.WarnContext(ctx, "stale mission reclaimed",
			"user_id", m.UserID,
			"started_at", m.StartedAt,
			"last_activity_at", m.LastActivityAt,
			"stale_after", s.staleAfter,
		)
		s.forceStop(m.UserID)
	}
}
