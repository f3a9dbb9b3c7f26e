package conductor

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CarpseDeam/aura-backend/internal/bus"
	"github.com/CarpseDeam/aura-backend/internal/llmgateway"
	"github.com/CarpseDeam/aura-backend/internal/observability"
	"github.com/CarpseDeam/aura-backend/internal/planner"
	"github.com/CarpseDeam/aura-backend/internal/tools"
	"github.com/CarpseDeam/aura-backend/pkg/models"
)

// fakeStore is a minimal in-memory missionlog.Store stand-in scoped to one
// (user, project) pair, sufficient to drive the Conductor's loop.
type fakeStore struct {
	mu    sync.Mutex
	tasks []*models.Task
	goal  string
}

func (f *fakeStore) SetInitialPlan(ctx context.Context, userID, project string, steps []string, userGoal string) (*models.MissionLog, error) {
	return nil, nil
}

func (f *fakeStore) GetTasks(ctx context.Context, userID, project string, done *bool) ([]*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Task
	for _, t := range f.tasks {
		if done != nil && t.Done != *done {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (f *fakeStore) MarkDone(ctx context.Context, userID, project string, taskID uint32) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.ID == taskID {
			t.Done = true
			t.LastError = ""
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) RecordFailure(ctx context.Context, userID, project string, taskID uint32, lastError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tasks {
		if t.ID == taskID {
			t.LastError = lastError
		}
	}
	return nil
}

func (f *fakeStore) ReplaceTasksFrom(ctx context.Context, userID, project string, startTaskID uint32, newSteps []string) (*models.MissionLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*models.Task
	for _, t := range f.tasks {
		if t.ID < startTaskID {
			kept = append(kept, t)
		}
	}
	nextID := uint32(len(kept) + 1)
	for _, s := range newSteps {
		kept = append(kept, &models.Task{ID: nextID, Description: s})
		nextID++
	}
	f.tasks = kept
	return nil, nil
}

func (f *fakeStore) InitialGoal(ctx context.Context, userID, project string) (string, error) {
	return f.goal, nil
}

func (f *fakeStore) Load(ctx context.Context, userID, project string) (*models.MissionLog, error) {
	return nil, nil
}

type fakeProjectContext struct{}

func (fakeProjectContext) FileTree(ctx context.Context, userID, project string) ([]string, error) {
	return []string{"main.go"}, nil
}
func (fakeProjectContext) DataContract(ctx context.Context, userID, project string) (string, error) {
	return "", nil
}
func (fakeProjectContext) ProjectRoot(userID, project string) string { return "/tmp" }

// scriptedGateway serves a fixed queue of replies, one per call, so a test
// can exercise a first-attempt failure followed by a retry success.
func scriptedGateway(t *testing.T, replies []string) *llmgateway.Gateway {
	t.Helper()
	idx := 0
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		reply := replies[idx]
		if idx < len(replies)-1 {
			idx++
		}
		mu.Unlock()
		fmt.Fprintf(w, `{"final_response":{"reply":%q}}`, reply)
	}))
	t.Cleanup(srv.Close)

	return llmgateway.New(llmgateway.Config{
		BaseURL: srv.URL,
		ResolveRole: func(ctx context.Context, userID string, role models.AgentRole) (string, string, float64, error) {
			return "anthropic", "claude-sonnet-4", 0.2, nil
		},
		Credentials: func(ctx context.Context, userID, provider string) (string, error) {
			return "sk-test", nil
		},
	})
}

// sharedMetrics is reused across tests in this package: promauto registers
// collectors with the default Prometheus registry, so calling NewMetrics()
// more than once per test binary panics on duplicate registration (see
// internal/observability/metrics_test.go's TestNewMetrics comment).
var sharedMetrics = observability.NewMetrics()

func newTestConductor(t *testing.T, store *fakeStore, gw *llmgateway.Gateway) *Conductor {
	t.Helper()
	reg := tools.NewRegistry()
	tools.RegisterRequiredTools(reg)

	return &Conductor{
		Bus:     bus.New(nil),
		Store:   store,
		Tools:   reg,
		Planner: planner.New(gw),
		Gateway: gw,
		Project: fakeProjectContext{},
		Metrics: sharedMetrics,
		Tracer:  noopTracer(t),
	}
}

func noopTracer(t *testing.T) *observability.Tracer {
	t.Helper()
	tr, shutdown := observability.NewTracer(observability.TraceConfig{ServiceName: "conductor-test"})
	t.Cleanup(func() { _ = shutdown(context.Background()) })
	return tr
}

func TestRunCompletesMissionOnToolSuccess(t *testing.T) {
	store := &fakeStore{
		goal: "list the project files",
		tasks: []*models.Task{
			{ID: 1, Description: "List the project files."},
		},
	}
	gw := scriptedGateway(t, []string{
		`{"tool_name": "list_files", "arguments": {"path": "."}}`,
		"Mission accomplished! Listed the files.",
	})
	c := newTestConductor(t, store, gw)

	err := c.Run(context.Background(), "u1", "proj")
	require.NoError(t, err)

	tasks, _ := store.GetTasks(context.Background(), "u1", "proj", nil)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].Done)
}

func TestRunRejectsConcurrentMissions(t *testing.T) {
	store := &fakeStore{tasks: []*models.Task{{ID: 1, Description: "noop"}}}
	gw := scriptedGateway(t, []string{`{"tool_name": "list_files", "arguments": {"path": "."}}`})
	c := newTestConductor(t, store, gw)

	require.True(t, c.Bus.SetRunning("u1"))
	err := c.Run(context.Background(), "u1", "proj")
	assert.ErrorIs(t, err, ErrMissionAlreadyRunning)
}

func TestRunStopsWhenStopRequested(t *testing.T) {
	store := &fakeStore{tasks: []*models.Task{{ID: 1, Description: "noop"}}}
	gw := scriptedGateway(t, []string{`{"tool_name": "list_files", "arguments": {"path": "."}}`})
	c := newTestConductor(t, store, gw)

	c.Bus.RequestStop("u1")
	err := c.Run(context.Background(), "u1", "proj")
	require.NoError(t, err)

	tasks, _ := store.GetTasks(context.Background(), "u1", "proj", nil)
	assert.False(t, tasks[0].Done)
}
