// Package scheduler arms timer triggers for waiting catch events.  Cron
// triggers run on a shared cron runner, absolute triggers on one-shot
// timers; both fire back into the event correlation engine.
package scheduler

import (
	"fmt"
	"time"

	"github.com/project-flogo/core/support/log"
	"github.com/robfig/cron/v3"

	"github.com/procflow/engine/service"
)

// Scheduler implements service.SchedulerGateway
type Scheduler struct {
	cron   *cron.Cron
	logger log.Logger
}

// NewScheduler creates a stopped Scheduler
func NewScheduler(logger log.Logger) *Scheduler {
	if logger == nil {
		logger = log.RootLogger()
	}
	return &Scheduler{
		cron:   cron.New(),
		logger: logger,
	}
}

// Start launches the cron runner
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron runner and waits for running fire callbacks
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Schedule implements service.SchedulerGateway.Schedule
func (s *Scheduler) Schedule(spec *service.TriggerSpec, fire func()) (service.JobHandle, error) {

	switch {
	case spec == nil:
		return nil, fmt.Errorf("no trigger to schedule")

	case spec.Cron != "":
		id, err := s.cron.AddFunc(spec.Cron, fire)
		if err != nil {
			return nil, fmt.Errorf("invalid cron trigger '%s': %w", spec.Cron, err)
		}
		if s.logger.DebugEnabled() {
			s.logger.Debugf("Scheduled cron trigger '%s'", spec.Cron)
		}
		return &cronJob{runner: s.cron, id: id}, nil

	case spec.At != "":
		at, err := time.Parse(time.RFC3339, spec.At)
		if err != nil {
			return nil, fmt.Errorf("invalid timer trigger '%s': %w", spec.At, err)
		}
		delay := time.Until(at)
		if delay < 0 {
			// already due, typically a trigger restored after a restart
			delay = 0
		}
		if s.logger.DebugEnabled() {
			s.logger.Debugf("Scheduled one-shot trigger firing in %s", delay)
		}
		return &timerJob{timer: time.AfterFunc(delay, fire)}, nil

	default:
		return nil, fmt.Errorf("trigger needs either an absolute time or a cron expression")
	}
}

type cronJob struct {
	runner *cron.Cron
	id     cron.EntryID
}

func (j *cronJob) Cancel() {
	j.runner.Remove(j.id)
}

type timerJob struct {
	timer *time.Timer
}

func (j *timerJob) Cancel() {
	j.timer.Stop()
}
