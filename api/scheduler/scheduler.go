package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	billingapp "github.com/offboardpro/offboardpro/api/services/billing/app"
)

// Reconciler retries entitlement grants for paid orders.
type Reconciler interface {
	ReconcilePending(ctx context.Context) (billingapp.ReconcileReport, error)
}

// Scheduler runs the reconciliation sweep on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	rec     Reconciler
	timeout time.Duration
}

func New(rec Reconciler) *Scheduler {
	logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelInfo))
	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))),
		rec:     rec,
		timeout: time.Minute,
	}
}

// Start schedules the sweep with a standard cron spec or a descriptor such
// as "@every 5m".
func (s *Scheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", spec, err)
	}
	s.cron.Start()
	slog.Info("scheduler started", "schedule", spec)
	return nil
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.rec.ReconcilePending(ctx); err != nil {
		slog.Error("reconciliation sweep failed", "error", err)
	}
}

// Stop waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Run starts the schedule and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context, spec string) error {
	if err := s.Start(spec); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}
