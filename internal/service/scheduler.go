package service

import (
	"github.com/robfig/cron/v3"
)

// Scheduler drives an optional, disabled-by-default periodic Checkpoint,
// invoking the exact same code path as the Checkpoint RPC (SPEC_FULL.md §3
// "Scheduled auto-checkpointing").
type Scheduler struct {
	cron *cron.Cron
	svc  *Service
}

// NewScheduler parses expr (standard 5-field cron) and registers a job that
// calls svc's checkpoint path. The scheduler is not started until Start is
// called.
func NewScheduler(svc *Service, expr string) (*Scheduler, error) {
	c := cron.New()
	if _, err := c.AddFunc(expr, func() {
		if _, err := svc.checkpointNow(); err != nil && svc.log != nil {
			svc.log.Error(err, "scheduled checkpoint failed")
		}
	}); err != nil {
		return nil, err
	}
	return &Scheduler{cron: c, svc: svc}, nil
}

// Start begins running the scheduled job in the background.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop cancels the schedule and waits for any in-flight job to finish.
func (s *Scheduler) Stop() { <-s.cron.Stop().Done() }
