package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"portfolio-tracker/internal/logging"
	"portfolio-tracker/internal/notify"
)

// DefaultSchedule runs the sweep every ten seconds.
const DefaultSchedule = "@every 10s"

// Scheduler runs the evaluator on a cron schedule and forwards triggered
// alerts to a notifier.
type Scheduler struct {
	cron      *cron.Cron
	evaluator *Evaluator
	notifier  notify.Notifier
	schedule  string
	logger    zerolog.Logger

	mu      sync.Mutex
	entry   cron.EntryID
	started bool
}

// NewScheduler creates a scheduler. An empty schedule means DefaultSchedule.
func NewScheduler(evaluator *Evaluator, notifier notify.Notifier, schedule string, logger zerolog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if notifier == nil {
		notifier = notify.NewNoOpNotifier()
	}
	logger = logging.WithComponent(logger, "alert-scheduler")
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger{logger}),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
		),
		evaluator: evaluator,
		notifier:  notifier,
		schedule:  schedule,
		logger:    logger,
	}
}

// Start registers the sweep and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	id, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Alert sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("register alert sweep %q: %w", s.schedule, err)
	}
	s.entry = id
	s.started = true
	s.cron.Start()
	s.logger.Info().Str("schedule", s.schedule).Msg("Alert scheduler started")
	return nil
}

// Stop stops the cron loop and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	<-s.cron.Stop().Done()
	s.cron.Remove(s.entry)
	s.started = false
	s.logger.Info().Msg("Alert scheduler stopped")
}

// Next returns the time of the next scheduled sweep, zero when stopped.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return time.Time{}
	}
	return s.cron.Entry(s.entry).Next
}

// RunOnce performs one sweep and notifies for every alert it triggered.
// Notification failures are logged; they never undo a trigger.
func (s *Scheduler) RunOnce(ctx context.Context) (*SweepResult, error) {
	runID := uuid.NewString()
	start := time.Now()

	res, err := s.evaluator.Sweep(ctx)
	if err != nil {
		return nil, err
	}

	for _, alert := range res.Alerts {
		if err := s.notifier.SendAlert(ctx, alert, runID); err != nil {
			s.logger.Warn().Err(err).Str("run_id", runID).Int64("target_id", alert.TargetID).Msg("Alert notification failed")
		}
	}

	logging.LogSweep(s.logger, runID, res.Checked, len(res.Alerts), res.Failed, time.Since(start))
	return res, nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
