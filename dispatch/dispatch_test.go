package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/procflow/engine/instance"
	"github.com/procflow/engine/service"
)

type recordingHandler struct {
	mu       sync.Mutex
	handled  []string
	inFlight map[string]bool
	overlap  bool
	failures map[string]int
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		inFlight: make(map[string]bool),
		failures: make(map[string]int),
	}
}

func (h *recordingHandler) HandleNode(_ context.Context, processID, nodeInstID string, _ instance.Action, _ map[string]interface{}) error {
	return h.handle(processID, nodeInstID)
}

func (h *recordingHandler) HandleProcess(_ context.Context, processID string, _ instance.Action, _ map[string]interface{}) error {
	return h.handle(processID, "")
}

func (h *recordingHandler) handle(processID, target string) error {
	h.mu.Lock()
	if h.inFlight[processID] {
		h.overlap = true
	}
	h.inFlight[processID] = true
	h.mu.Unlock()

	time.Sleep(time.Millisecond)

	h.mu.Lock()
	h.inFlight[processID] = false
	h.handled = append(h.handled, processID+"/"+target)
	remaining := h.failures[processID]
	if remaining > 0 {
		h.failures[processID] = remaining - 1
	}
	h.mu.Unlock()

	if remaining > 0 {
		return service.NewConcurrencyConflictError("process instance", processID)
	}
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handled)
}

func TestItemsForOneInstanceAreSerialized(t *testing.T) {

	handler := newRecordingHandler()
	d := NewDispatcher(handler, nil, WithWorkers(4))
	d.Start()
	defer d.Stop()

	for i := 0; i < 20; i++ {
		d.ScheduleNode("p1", "n1", instance.ActionExec, nil)
	}

	assert.Eventually(t, func() bool { return handler.count() == 20 }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, handler.overlap, "items for the same instance must never run concurrently")
}

func TestDistinctInstancesRunConcurrently(t *testing.T) {

	handler := newRecordingHandler()
	d := NewDispatcher(handler, nil, WithWorkers(4))
	d.Start()
	defer d.Stop()

	for i := 0; i < 10; i++ {
		d.ScheduleNode("p1", "n1", instance.ActionExec, nil)
		d.ScheduleNode("p2", "n1", instance.ActionExec, nil)
		d.ScheduleProcess("p3", instance.ActionCancel, nil)
	}

	assert.Eventually(t, func() bool { return handler.count() == 30 }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, handler.overlap)
}

func TestConflictedItemIsReEnqueued(t *testing.T) {

	handler := newRecordingHandler()
	handler.failures["p1"] = 2

	d := NewDispatcher(handler, nil, WithWorkers(2))
	d.Start()
	defer d.Stop()

	d.ScheduleNode("p1", "n1", instance.ActionExec, nil)

	// two conflicts then success: the item is handled three times in total
	assert.Eventually(t, func() bool { return handler.count() == 3 }, 5*time.Second, 10*time.Millisecond)
}

func TestConflictRetriesAreCapped(t *testing.T) {

	handler := newRecordingHandler()
	handler.failures["p1"] = 100

	d := NewDispatcher(handler, nil, WithWorkers(2), WithMaxAttempts(3))
	d.Start()
	defer d.Stop()

	d.ScheduleNode("p1", "n1", instance.ActionExec, nil)

	assert.Eventually(t, func() bool { return handler.count() == 3 }, 5*time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, handler.count())
}

func TestLockMapIsPruned(t *testing.T) {

	handler := newRecordingHandler()
	d := NewDispatcher(handler, nil, WithWorkers(4))
	d.Start()
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.ScheduleNode("p1", "n1", instance.ActionExec, nil)
	}
	assert.Eventually(t, func() bool { return handler.count() == 5 }, 5*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(d.locks) == 0 && len(d.refs) == 0
	}, time.Second, 10*time.Millisecond)
}
