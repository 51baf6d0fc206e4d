package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"vpatient/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// Checkpoint Scheduler: periodic autosave while a page is open
// ─────────────────────────────────────────────────────────────

// CheckpointScheduler runs the page's autosave on a cron schedule.
// Runs are skipped while the hook is inactive or the page has no state.
type CheckpointScheduler struct {
	log   *slog.Logger
	pages *PageController
	sched *cron.Cron
	ctx   context.Context
}

// NewCheckpointScheduler parses schedule (standard cron or @every descriptors).
func NewCheckpointScheduler(log *slog.Logger, pages *PageController, schedule string) (*CheckpointScheduler, error) {
	if log == nil {
		log = slog.Default()
	}
	if pages == nil {
		return nil, errors.New("page controller is required")
	}
	s := &CheckpointScheduler{
		log:   log,
		pages: pages,
		sched: cron.New(),
		ctx:   context.Background(),
	}
	if _, err := s.sched.AddFunc(schedule, s.checkpoint); err != nil {
		return nil, fmt.Errorf("parse checkpoint schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins running checkpoints. ctx is handed to every save.
func (s *CheckpointScheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.sched.Start()
	s.log.Info("checkpoint: scheduler started")
}

// Stop halts the schedule and waits for a running checkpoint to finish.
func (s *CheckpointScheduler) Stop() {
	<-s.sched.Stop().Done()
}

func (s *CheckpointScheduler) checkpoint() {
	err := s.pages.Autosave(s.ctx)
	switch {
	case err == nil:
		s.log.Debug("checkpoint: saved")
	case errors.Is(err, domain.ErrAutosaveDisabled),
		errors.Is(err, domain.ErrStateUnavailable),
		errors.Is(err, domain.ErrIdentifierMissing):
		s.log.Debug("checkpoint: skipped", "reason", domain.ErrorKind(err))
	default:
		s.log.Warn("checkpoint: save failed", "error", err)
	}
}
