// Package event implements the event correlation engine: it persists the
// subscriptions of waiting catch nodes and event-subprocess scopes, matches
// published messages and signals against them, and arms timer triggers.
package event

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/project-flogo/core/data/coerce"
	"github.com/project-flogo/core/support/log"
	"go.uber.org/multierr"

	"github.com/procflow/engine/definition"
	"github.com/procflow/engine/instance"
	"github.com/procflow/engine/service"
)

// Correlator matches published events to persisted subscriptions.  Matching
// is exact on (event type, name, correlation key); a message consumes the
// oldest matching subscription, a signal is delivered to every match.
type Correlator struct {
	store     instance.Store
	expr      service.ExpressionGateway
	scheduler service.SchedulerGateway
	work      instance.WorkScheduler
	logger    log.Logger

	mu   sync.Mutex
	jobs map[string]service.JobHandle
}

var timeNow = time.Now

// NewCorrelator creates a Correlator from the specified collaborators
func NewCorrelator(store instance.Store, expr service.ExpressionGateway, scheduler service.SchedulerGateway, work instance.WorkScheduler, logger log.Logger) *Correlator {
	if logger == nil {
		logger = log.RootLogger()
	}
	return &Correlator{
		store:     store,
		expr:      expr,
		scheduler: scheduler,
		work:      work,
		logger:    logger,
		jobs:      make(map[string]service.JobHandle),
	}
}

// Subscribe implements instance.EventSubscriber.Subscribe
func (c *Correlator) Subscribe(pi *instance.ProcessInstance, ni *instance.NodeInst, spec *definition.EventSpec) error {

	key, err := c.correlationKey(pi, spec)
	if err != nil {
		return err
	}

	we := &instance.WaitingEvent{
		ID:               uuid.NewString(),
		EventType:        spec.EventType,
		Name:             spec.Name,
		CorrelationKey:   key,
		ProcessID:        pi.ID,
		TargetNodeInstID: ni.ID,
		Created:          timeNow(),
	}
	if spec.Trigger != nil {
		we.TriggerAt = spec.Trigger.At
		we.TriggerCron = spec.Trigger.Cron
	}

	if err := c.store.CreateWaitingEvent(we); err != nil {
		return err
	}

	if c.logger.DebugEnabled() {
		c.logger.Debugf("Node instance '%s' waiting on %s '%s' (key '%s')", ni.ID, we.EventType, we.Name, key)
	}

	if spec.EventType == definition.EventTimer {
		return c.armTimer(we)
	}
	return nil
}

// SubscribeScope implements instance.EventSubscriber.SubscribeScope
func (c *Correlator) SubscribeScope(pi *instance.ProcessInstance) error {

	for _, esp := range pi.Definition().EventSubprocesses() {

		key, err := c.correlationKey(pi, esp.Event)
		if err != nil {
			return err
		}

		we := &instance.WaitingEvent{
			ID:             uuid.NewString(),
			EventType:      esp.Event.EventType,
			Name:           esp.Event.Name,
			CorrelationKey: key,
			ProcessID:      pi.ID,
			StartNodeID:    esp.StartNodeID,
			Interrupting:   esp.Interrupting,
			Created:        timeNow(),
		}
		if esp.Event.Trigger != nil {
			we.TriggerAt = esp.Event.Trigger.At
			we.TriggerCron = esp.Event.Trigger.Cron
		}

		if err := c.store.CreateWaitingEvent(we); err != nil {
			return err
		}

		if esp.Event.EventType == definition.EventTimer {
			if err := c.armTimer(we); err != nil {
				return err
			}
		}
	}

	return nil
}

// Unsubscribe implements instance.EventSubscriber.Unsubscribe
func (c *Correlator) Unsubscribe(ni *instance.NodeInst) error {

	events, err := c.store.WaitingEventsForNode(ni.ID)
	if err != nil {
		return err
	}
	return c.removeAll(events)
}

// UnsubscribeScope implements instance.EventSubscriber.UnsubscribeScope
func (c *Correlator) UnsubscribeScope(processID string) error {

	events, err := c.store.WaitingEventsForProcess(processID)
	if err != nil {
		return err
	}
	return c.removeAll(events)
}

// removeAll removes every subscription, collecting errors so one failed
// delete does not strand the others
func (c *Correlator) removeAll(events []*instance.WaitingEvent) error {
	var err error
	for _, we := range events {
		err = multierr.Append(err, c.remove(we))
	}
	return err
}

// Publish matches a named event against the waiting subscriptions and
// schedules the resulting work.  A message is consumed by the oldest match
// only; a signal is broadcast to every match.  It returns the number of
// subscriptions the event was delivered to.
func (c *Correlator) Publish(eventType, name, correlationKey string, payload map[string]interface{}) (int, error) {

	if eventType != definition.EventMessage && eventType != definition.EventSignal {
		return 0, fmt.Errorf("'%s' is not a publishable event type", eventType)
	}

	matches, err := c.store.MatchWaitingEvents(eventType, name, correlationKey)
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		if c.logger.DebugEnabled() {
			c.logger.Debugf("No subscription matched %s '%s' (key '%s')", eventType, name, correlationKey)
		}
		return 0, nil
	}

	if eventType == definition.EventMessage {
		matches = matches[:1]
	}

	for _, we := range matches {
		if err := c.deliver(we, payload); err != nil {
			return 0, err
		}
	}

	return len(matches), nil
}

// deliver consumes one subscription: the persisted record is removed and a
// work item resuming the target node or starting the event subprocess is
// enqueued.  Non-interrupting event-subprocess subscriptions survive
// delivery so they can match again.
func (c *Correlator) deliver(we *instance.WaitingEvent, payload map[string]interface{}) error {

	repeating := we.TargetNodeInstID == "" && !we.Interrupting

	if !repeating {
		if err := c.remove(we); err != nil {
			return err
		}
	}

	if we.TargetNodeInstID != "" {
		c.work.ScheduleNode(we.ProcessID, we.TargetNodeInstID, instance.ActionResume, payload)
		return nil
	}

	scoped := map[string]interface{}{
		instance.PayloadStartNode:    we.StartNodeID,
		instance.PayloadInterrupting: we.Interrupting,
	}
	for name, value := range payload {
		scoped[name] = value
	}
	c.work.ScheduleProcess(we.ProcessID, instance.ActionEventSubprocess, scoped)
	return nil
}

// RestoreTimers re-arms the timer triggers of persisted subscriptions after
// a restart.  In-memory job handles do not survive a crash, the
// subscriptions do.
func (c *Correlator) RestoreTimers() error {

	instances, err := c.store.ListProcessInstances()
	if err != nil {
		return err
	}

	for _, pi := range instances {
		events, err := c.store.WaitingEventsForProcess(pi.ID)
		if err != nil {
			return err
		}
		for _, we := range events {
			if we.EventType != definition.EventTimer {
				continue
			}
			if err := c.armTimer(we); err != nil {
				c.logger.Errorf("unable to re-arm timer for subscription '%s': %v", we.ID, err)
			}
		}
	}

	return nil
}

func (c *Correlator) armTimer(we *instance.WaitingEvent) error {

	trigger := &service.TriggerSpec{At: we.TriggerAt, Cron: we.TriggerCron}

	job, err := c.scheduler.Schedule(trigger, func() {
		if err := c.deliver(we, nil); err != nil {
			c.logger.Errorf("timer delivery for subscription '%s' failed: %v", we.ID, err)
		}
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.jobs[we.ID] = job
	c.mu.Unlock()
	return nil
}

func (c *Correlator) remove(we *instance.WaitingEvent) error {

	if err := c.store.DeleteWaitingEvent(we.ID); err != nil {
		return err
	}

	c.mu.Lock()
	job, ok := c.jobs[we.ID]
	if ok {
		delete(c.jobs, we.ID)
	}
	c.mu.Unlock()

	if ok {
		job.Cancel()
	}
	return nil
}

func (c *Correlator) correlationKey(pi *instance.ProcessInstance, spec *definition.EventSpec) (string, error) {

	if spec.CorrelationKey == nil {
		return "", nil
	}

	val, err := c.expr.Eval(spec.CorrelationKey, pi.Scope(nil))
	if err != nil {
		return "", err
	}
	return coerce.ToString(val)
}
