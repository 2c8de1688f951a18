// Package scheduler runs background syncs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/user/healthchat/internal/types"
)

// Handler syncs one subject.
type Handler func(ctx context.Context, subject types.SubjectID) error

// Plan is what to sync and when.
type Plan struct {
	Schedule string
	Subjects []types.SubjectID
}

// Source supplies the current plan. It is consulted on Start and Reload so
// edits to the config take effect without a restart.
type Source func() (Plan, error)

// Scheduler fires the handler for every planned subject on each tick. A tick
// is skipped while the previous one is still running.
type Scheduler struct {
	source  Source
	handler Handler

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func New(source Source, handler Handler) *Scheduler {
	return &Scheduler{source: source, handler: handler}
}

func newCron() *cron.Cron {
	return cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
}

// Start registers the planned sync and starts the ticker. An empty schedule
// or subject list leaves the scheduler idle.
func (s *Scheduler) Start() error {
	plan, err := s.source()
	if err != nil {
		return fmt.Errorf("load sync plan: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cron = newCron()
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if plan.Schedule == "" || len(plan.Subjects) == 0 {
		slog.Info("background sync disabled")
		return nil
	}

	subjects := append([]types.SubjectID(nil), plan.Subjects...)
	ctx := s.ctx
	if _, err := s.cron.AddFunc(plan.Schedule, func() { s.run(ctx, subjects) }); err != nil {
		s.cancel()
		return fmt.Errorf("invalid sync schedule %q: %w", plan.Schedule, err)
	}
	s.cron.Start()
	slog.Info("scheduled background sync", "schedule", plan.Schedule, "subjects", len(subjects))
	return nil
}

func (s *Scheduler) run(ctx context.Context, subjects []types.SubjectID) {
	for _, subject := range subjects {
		if ctx.Err() != nil {
			return
		}
		slog.Info("cron firing sync", "subject", subject)
		if err := s.handler(ctx, subject); err != nil {
			slog.Error("scheduled sync failed", "subject", subject, "error", err)
		}
	}
}

// Reload stops the current schedule and starts again from a fresh plan.
func (s *Scheduler) Reload() error {
	s.Stop()
	return s.Start()
}

// Stop cancels any running sync and waits for it to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
}
