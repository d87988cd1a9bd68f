package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps cron-backed background jobs.
type Scheduler struct {
	cron *cron.Cron
}

func NewScheduler(location *time.Location) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithLocation(location)),
	}
}

// ScheduleMaterialization registers the morning pass that pre-creates
// today's occurrences. spec is a standard 5-field cron expression.
func (scheduler *Scheduler) ScheduleMaterialization(spec string, occurrences *OccurrenceService) error {
	_, err := scheduler.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := occurrences.MaterializeToday(ctx); err != nil {
			slog.Error("materializing today's occurrences", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling materialization %q: %w", spec, err)
	}
	return nil
}

func (scheduler *Scheduler) Start() {
	scheduler.cron.Start()
}

func (scheduler *Scheduler) Stop() {
	ctx := scheduler.cron.Stop()
	<-ctx.Done()
}
