package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mso4sc/experiments/pkg/mocks"
	"github.com/mso4sc/experiments/pkg/models"
	"github.com/mso4sc/experiments/pkg/orchestrator"
	"github.com/mso4sc/experiments/pkg/persistence"
	"github.com/mso4sc/experiments/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testPollerConfig() PollerConfig {
	return PollerConfig{Interval: time.Millisecond, RetryBudget: 5, PageSize: 100}
}

func setupStore(t *testing.T) (*memory.Persistence, *models.AppInstance) {
	t.Helper()

	ctx := context.Background()
	store := memory.NewPersistence()

	app := &models.Application{ID: "app-1", Name: "app1", Owner: "alice"}
	require.NoError(t, store.Applications().Save(ctx, app))

	instance := &models.AppInstance{
		ID:            "inst-1",
		Name:          "dep1",
		ApplicationID: app.ID,
		Inputs:        map[string]any{"n": 1},
		Owner:         "alice",
		Status:        models.StatusPrepared,
	}
	require.NoError(t, store.Instances().Save(ctx, instance))

	return store, instance
}

func logLines(t *testing.T, store *memory.Persistence, instanceID string) []string {
	t.Helper()

	entries, err := store.Logs().List(context.Background(), instanceID, 0)
	require.NoError(t, err)

	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		lines = append(lines, entry.Message)
	}

	return lines
}

func page(t *testing.T, raws ...string) *orchestrator.EventPage {
	t.Helper()

	items := make([]orchestrator.Event, 0, len(raws))
	for _, raw := range raws {
		items = append(items, decodeEvent(t, raw))
	}

	return &orchestrator.EventPage{Items: items, Total: len(items)}
}

const (
	workflowStarted = `{"type": "cloudify_event", "event_type": "workflow_started", "message": "", "reported_timestamp": "2019-01-01T00:00:00Z"}`
	nodeEvent       = `{"type": "cloudify_event", "event_type": "workflow_node_event", "message": {"text": "m"}, "node_instance_id": "n1", "node_name": "node1", "reported_timestamp": "2019-01-01T00:00:01Z"}`
	untimedEvent    = `{"type": "cloudify_event", "event_type": "workflow_node_event", "message": "lost", "node_instance_id": "n2", "node_name": "node2"}`
)

func TestPoller_FinishedExecution(t *testing.T) {
	store, instance := setupStore(t)
	client := &mocks.MockOrchestrator{}

	client.On("GetExecution", mock.Anything, "exec-1").Return(&orchestrator.Execution{ID: "exec-1", Status: "terminated"}, nil)
	client.On("ListEvents", mock.Anything, "exec-1", 0, 100).Return(page(t, workflowStarted, nodeEvent), nil)

	poller := NewPoller(client, store.Logs(), testPollerConfig(), nil)
	result := poller.Poll(context.Background(), instance.ID, "exec-1")

	assert.Equal(t, PollResult{Status: models.StatusTerminated, Observed: true, Offset: 2}, result)
	assert.Equal(t, []string{"m n1 (node1)"}, logLines(t, store, instance.ID))

	entries, err := store.Logs().List(context.Background(), instance.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 1, 1, 0, 0, 1, 0, time.UTC), entries[0].Generated)

	client.AssertNumberOfCalls(t, "GetExecution", 1)
	client.AssertExpectations(t)
}

func TestPoller_MissingTimestampAdvancesOffset(t *testing.T) {
	store, instance := setupStore(t)
	client := &mocks.MockOrchestrator{}

	client.On("GetExecution", mock.Anything, "exec-1").Return(&orchestrator.Execution{Status: "failed"}, nil)
	client.On("ListEvents", mock.Anything, "exec-1", 0, 100).Return(page(t, untimedEvent, nodeEvent), nil)

	result := NewPoller(client, store.Logs(), testPollerConfig(), nil).Poll(context.Background(), instance.ID, "exec-1")

	assert.Equal(t, 2, result.Offset)
	assert.Equal(t, models.StatusFailed, result.Status)
	assert.Equal(t, []string{"m n1 (node1)"}, logLines(t, store, instance.ID))
}

func TestPoller_FollowsRunningExecution(t *testing.T) {
	store, instance := setupStore(t)
	client := &mocks.MockOrchestrator{}

	client.On("GetExecution", mock.Anything, "exec-1").Return(&orchestrator.Execution{Status: "started"}, nil).Once()
	client.On("GetExecution", mock.Anything, "exec-1").Return(&orchestrator.Execution{Status: "terminated"}, nil).Once()
	client.On("ListEvents", mock.Anything, "exec-1", 0, 100).Return(page(t, workflowStarted), nil).Once()
	client.On("ListEvents", mock.Anything, "exec-1", 1, 100).Return(page(t, nodeEvent), nil).Once()

	result := NewPoller(client, store.Logs(), testPollerConfig(), nil).Poll(context.Background(), instance.ID, "exec-1")

	assert.Equal(t, PollResult{Status: models.StatusTerminated, Observed: true, Offset: 2}, result)
	assert.Equal(t, []string{"m n1 (node1)"}, logLines(t, store, instance.ID))
	client.AssertExpectations(t)
}

func TestPoller_DrainsFullPagesAfterFinish(t *testing.T) {
	store, instance := setupStore(t)
	client := &mocks.MockOrchestrator{}

	config := testPollerConfig()
	config.PageSize = 2

	client.On("GetExecution", mock.Anything, "exec-1").Return(&orchestrator.Execution{Status: "terminated"}, nil)
	client.On("ListEvents", mock.Anything, "exec-1", 0, 2).Return(page(t, nodeEvent, nodeEvent), nil).Once()
	client.On("ListEvents", mock.Anything, "exec-1", 2, 2).Return(page(t, nodeEvent), nil).Once()

	result := NewPoller(client, store.Logs(), config, nil).Poll(context.Background(), instance.ID, "exec-1")

	assert.Equal(t, 3, result.Offset)
	assert.Len(t, logLines(t, store, instance.ID), 3)
	client.AssertExpectations(t)
}

func TestPoller_RetryBudgetExhausted(t *testing.T) {
	store, instance := setupStore(t)
	client := &mocks.MockOrchestrator{}

	client.On("GetExecution", mock.Anything, "exec-1").Return(nil, errors.New("connection refused")).Times(6)

	result := NewPoller(client, store.Logs(), testPollerConfig(), nil).Poll(context.Background(), instance.ID, "exec-1")

	assert.False(t, result.Observed)
	assert.Equal(t, 0, result.Offset)
	client.AssertNumberOfCalls(t, "GetExecution", 5)
	client.AssertNotCalled(t, "ListEvents", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPoller_SuccessRestoresBudget(t *testing.T) {
	store, instance := setupStore(t)
	client := &mocks.MockOrchestrator{}

	fail := errors.New("timeout")
	client.On("GetExecution", mock.Anything, "exec-1").Return(nil, fail).Times(4)
	client.On("GetExecution", mock.Anything, "exec-1").Return(&orchestrator.Execution{Status: "started"}, nil).Once()
	client.On("GetExecution", mock.Anything, "exec-1").Return(nil, fail).Times(4)
	client.On("GetExecution", mock.Anything, "exec-1").Return(&orchestrator.Execution{Status: "terminated"}, nil).Once()
	client.On("ListEvents", mock.Anything, "exec-1", 0, 100).Return(page(t), nil)

	result := NewPoller(client, store.Logs(), testPollerConfig(), nil).Poll(context.Background(), instance.ID, "exec-1")

	assert.Equal(t, PollResult{Status: models.StatusTerminated, Observed: true}, result)
	client.AssertNumberOfCalls(t, "GetExecution", 10)
}

func TestPoller_EventFetchErrorKeepsOffset(t *testing.T) {
	store, instance := setupStore(t)
	client := &mocks.MockOrchestrator{}

	client.On("GetExecution", mock.Anything, "exec-1").Return(&orchestrator.Execution{Status: "terminated"}, nil)
	client.On("ListEvents", mock.Anything, "exec-1", 0, 100).Return(nil, errors.New("bad gateway")).Once()
	client.On("ListEvents", mock.Anything, "exec-1", 0, 100).Return(page(t, nodeEvent), nil).Once()

	result := NewPoller(client, store.Logs(), testPollerConfig(), nil).Poll(context.Background(), instance.ID, "exec-1")

	assert.Equal(t, 1, result.Offset)
	assert.Equal(t, []string{"m n1 (node1)"}, logLines(t, store, instance.ID))
}

func TestPoller_StopsOnCancel(t *testing.T) {
	store, instance := setupStore(t)
	client := &mocks.MockOrchestrator{}

	client.On("GetExecution", mock.Anything, "exec-1").Return(&orchestrator.Execution{Status: "started"}, nil)
	client.On("ListEvents", mock.Anything, "exec-1", 0, 100).Return(page(t), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := NewPoller(client, store.Logs(), testPollerConfig(), nil).Poll(ctx, instance.ID, "exec-1")

	assert.Equal(t, models.StatusStarted, result.Status)
	assert.True(t, result.Observed)
}

func TestPoller_StopsAfterMaxDuration(t *testing.T) {
	store, instance := setupStore(t)
	client := &mocks.MockOrchestrator{}

	client.On("GetExecution", mock.Anything, "exec-1").Return(&orchestrator.Execution{Status: "queued"}, nil)
	client.On("ListEvents", mock.Anything, "exec-1", 0, 100).Return(page(t), nil)

	config := testPollerConfig()
	config.MaxDuration = 20 * time.Millisecond

	done := make(chan PollResult, 1)
	go func() {
		done <- NewPoller(client, store.Logs(), config, nil).Poll(context.Background(), instance.ID, "exec-1")
	}()

	select {
	case result := <-done:
		assert.Equal(t, models.StatusPending, result.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop after its maximum duration")
	}
}

func TestNormalizeStatus(t *testing.T) {
	assert.Equal(t, models.StatusTerminated, normalizeStatus("terminated"))
	assert.Equal(t, models.StatusPending, normalizeStatus("queued"))
	assert.Equal(t, models.StatusPending, normalizeStatus("scheduled"))
	assert.Equal(t, models.StatusForceCancelling, normalizeStatus("kill_cancelling"))
	assert.Equal(t, models.StatusStarted, normalizeStatus("something_new"))
}

// flakyLogs fails the append with the given index once.
type flakyLogs struct {
	persistence.LogRepository

	failAt  int
	appends int
}

func (l *flakyLogs) Append(ctx context.Context, entry *models.InstanceLog) error {
	l.appends++
	if l.appends == l.failAt {
		return errors.New("connection reset")
	}

	return l.LogRepository.Append(ctx, entry)
}

func TestPoller_AppendFailureRetriesEvent(t *testing.T) {
	store, instance := setupStore(t)
	client := &mocks.MockOrchestrator{}

	second := `{"type": "cloudify_event", "event_type": "workflow_node_event", "message": "b", "node_instance_id": "n2", "node_name": "node2", "reported_timestamp": "2019-01-01T00:00:02Z"}`
	third := `{"type": "cloudify_event", "event_type": "workflow_node_event", "message": "c", "node_instance_id": "n3", "node_name": "node3", "reported_timestamp": "2019-01-01T00:00:03Z"}`

	client.On("GetExecution", mock.Anything, "exec-1").Return(&orchestrator.Execution{Status: "terminated"}, nil)
	client.On("ListEvents", mock.Anything, "exec-1", 0, 100).Return(page(t, nodeEvent, second, third), nil).Once()
	client.On("ListEvents", mock.Anything, "exec-1", 1, 100).Return(page(t, second, third), nil).Once()

	logs := &flakyLogs{LogRepository: store.Logs(), failAt: 2}
	result := NewPoller(client, logs, testPollerConfig(), nil).Poll(context.Background(), instance.ID, "exec-1")

	assert.Equal(t, PollResult{Status: models.StatusTerminated, Observed: true, Offset: 3}, result)
	assert.Equal(t, []string{"m n1 (node1)", "b n2 (node2)", "c n3 (node3)"}, logLines(t, store, instance.ID))
	client.AssertExpectations(t)
}
