package match

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/algobattle/algobattle-server/internal/models"
	"github.com/algobattle/algobattle-server/internal/types"
)

// sweepOverlap extends the due window backwards past one interval so a
// match is not lost to a late wake or a short downtime.
const sweepOverlap = time.Hour

// Sweeper periodically picks up due scheduled matches and hands them to
// the runner.
type Sweeper struct {
	db       *gorm.DB
	runner   *Runner
	interval time.Duration

	mu        sync.Mutex
	lastSweep time.Time
}

func NewSweeper(db *gorm.DB, runner *Runner, interval time.Duration) *Sweeper {
	return &Sweeper{
		db:       db,
		runner:   runner,
		interval: interval,
	}
}

// NextWake returns how long to sleep so that sweeps land on interval
// boundaries counted from local midnight. Anchoring to midnight keeps
// wake times predictable for operators scheduling matches.
func NextWake(now time.Time, interval time.Duration) time.Duration {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return interval - now.Sub(midnight)%interval
}

// Sweep runs at most one due match. More than one match in the window is
// refused outright since executions are strictly serial and running them
// back to back would push the later ones far past their scheduled time.
func (s *Sweeper) Sweep(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Sweeper.Sweep")
	defer span.End()

	s.mu.Lock()
	s.lastSweep = time.Now()
	s.mu.Unlock()

	due, err := models.DueScheduledMatches(ctx, s.db, time.Now(), s.interval, sweepOverlap)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query due matches")
		return err
	}

	span.SetAttributes(attribute.Int("due", len(due)))

	switch {
	case len(due) == 0:
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "no due matches")
		return nil
	case len(due) > 1:
		slog.ErrorContext(ctx, "matches are scheduled too close together, aborting their execution")
		span.AddEvent("aborted", trace.WithAttributes(attribute.Int("matches", len(due))))
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "refused overlapping matches")
		return nil
	}

	err = s.runner.RunScheduled(ctx, &due[0])
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "match execution failed")
		return err
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "swept")
	return nil
}

// Reconcile fails over results left in `running` by a crashed process.
// Called once on startup before the sweep loop begins.
func (s *Sweeper) Reconcile(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Sweeper.Reconcile")
	defer span.End()

	stale, err := models.StaleRunningResults(ctx, s.db, time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query stale results")
		return err
	}

	for _, result := range stale {
		err := s.db.WithContext(ctx).
			Model(&result).
			Update("status", types.MatchStatusFailed).Error
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fail stale result")
			return err
		}

		slog.WarnContext(ctx, "failed stale running match result", "matchResultID", result.ID)
	}

	span.SetAttributes(attribute.Int("reconciled", len(stale)))

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "reconciled stale results")
	return nil
}

// LastSweep reports when the loop last swept, zero before the first one.
// Surfaced through the scheduler's health endpoint.
func (s *Sweeper) LastSweep() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSweep
}

// Run reconciles once and then sweeps on interval boundaries until the
// context is cancelled. Sweep errors and panics are logged, not fatal.
func (s *Sweeper) Run(ctx context.Context) error {
	err := s.Reconcile(ctx)
	if err != nil {
		return err
	}

	timer := time.NewTimer(NextWake(time.Now(), s.interval))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			err := s.sweepRecovering(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "sweep failed", "error", err)
			}
			timer.Reset(NextWake(time.Now(), s.interval))
		}
	}
}

func (s *Sweeper) sweepRecovering(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweep panicked: %v", r)
		}
	}()

	return s.Sweep(ctx)
}
