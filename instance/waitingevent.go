package instance

import (
	"time"
)

// WaitingEvent is a persisted subscription created when an instance reaches
// a catching node that cannot complete synchronously, or when an event
// subprocess scope becomes active.  It is deleted on match-and-resume and on
// instance cancel/abort.
type WaitingEvent struct {
	ID             string `json:"id"`
	EventType      string `json:"eventType"`
	Name           string `json:"name"`
	CorrelationKey string `json:"correlationKey,omitempty"`

	ProcessID string `json:"processId"`

	// TargetNodeInstID is the waiting catch node to resume on match; empty
	// for event-subprocess subscriptions
	TargetNodeInstID string `json:"targetNodeInstId,omitempty"`

	// StartNodeID is the event subprocess root entered on match
	StartNodeID  string `json:"startNodeId,omitempty"`
	Interrupting bool   `json:"interrupting,omitempty"`

	// TriggerAt / TriggerCron persist the timer trigger so it can be
	// re-armed after a restart
	TriggerAt   string `json:"triggerAt,omitempty"`
	TriggerCron string `json:"triggerCron,omitempty"`

	Created time.Time `json:"created"`
}
