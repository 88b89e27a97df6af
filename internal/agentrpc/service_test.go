package agentrpc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	activityrepo "github.com/prism/prism/internal/activitylog/repositoryimpl"
	"github.com/prism/prism/internal/dispatch"
	"github.com/prism/prism/internal/ingestion"
	"github.com/prism/prism/internal/lifecycle"
	"github.com/prism/prism/internal/notifier"
	"github.com/prism/prism/internal/task"
	taskrepo "github.com/prism/prism/internal/task/repositoryimpl"
	"github.com/prism/prism/internal/taskstore"
	"github.com/prism/prism/pkg/cerr"
	"github.com/prism/prism/pkg/keylock"
	"github.com/prism/prism/pkg/storage"
)

type fixture struct {
	client   *Client
	registry *dispatch.Registry
	tasks    *taskrepo.YAMLRepository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	tasks := taskrepo.NewYAMLRepository(s)
	activities := activityrepo.NewYAMLRepository(s)
	registry := dispatch.NewRegistry(8)
	svc := ingestion.NewService(tasks, taskstore.NewSequentialRecorder(tasks, activities), notifier.New(), keylock.New())

	mux := http.NewServeMux()
	mux.Handle(NewHandler(NewServer(registry, svc), connect.WithInterceptors(cerr.NewConvertConnectErrorInterceptor())))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &fixture{
		client:   NewClient(srv.Client(), srv.URL),
		registry: registry,
		tasks:    tasks,
	}
}

func TestServer_RegisterAndHeartbeatAreUnconditional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.client.RegisterAgent(ctx, &RegisterAgentRequest{AgentID: "agent-1", Version: "1.0.0"})
	require.NoError(t, err)
	assert.True(t, reg.Success)

	hb, err := f.client.Heartbeat(ctx, &HeartbeatRequest{AgentID: "agent-unknown"})
	require.NoError(t, err)
	assert.True(t, hb.Acknowledged)
}

// listen runs Client.Listen in the background. Its result is sent on the
// returned error channel once ctx is cancelled.
func listen(ctx context.Context, c *Client, agentID string) (<-chan *DispatchMessage, <-chan error) {
	msgs := make(chan *DispatchMessage, 8)
	done := make(chan error, 1)
	go func() {
		done <- c.Listen(ctx, agentID, func(m *DispatchMessage) error {
			msgs <- m
			return nil
		})
	}()
	return msgs, done
}

func nextMessage(t *testing.T, msgs <-chan *DispatchMessage, done <-chan error) *DispatchMessage {
	t.Helper()
	select {
	case m := <-msgs:
		return m
	case err := <-done:
		require.FailNow(t, "stream ended", "error: %v", err)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "no dispatch message received")
	}
	return nil
}

func TestServer_UpdateTaskStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.tasks.Create(ctx, &task.Task{
		ID:              "T1",
		Title:           "add login page",
		AssignedAgentID: "agent-1",
		Status:          lifecycle.StatusCreated,
		GitPhase:        lifecycle.GitPhaseNone,
		CreatedAt:       time.Now(),
	}))

	resp, err := f.client.UpdateTaskStatus(ctx, &UpdateTaskStatusRequest{TaskID: "T1", Status: "GENERATED", AgentID: "agent-1", GitBranch: "feat/login"})
	require.NoError(t, err)
	assert.True(t, resp.Success, resp.Message)

	stored, err := f.tasks.Get(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusGenerated, stored.Status)
	assert.Equal(t, "feat/login", stored.GitBranch)

	resp, err = f.client.UpdateTaskStatus(ctx, &UpdateTaskStatusRequest{TaskID: "ghost-1", Status: "DONE"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Message)

	resp, err = f.client.UpdateTaskStatus(ctx, &UpdateTaskStatusRequest{Status: "DONE"})
	require.NoError(t, err, "a missing task id is a rejected report, not a failed call")
	assert.False(t, resp.Success)
	assert.Equal(t, "taskId is required", resp.Message)
}

func TestServer_UpdateTaskStatusUnassignedTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.tasks.Create(ctx, &task.Task{
		ID:        "T1",
		Title:     "add login page",
		Status:    lifecycle.StatusCreated,
		GitPhase:  lifecycle.GitPhaseNone,
		CreatedAt: time.Now(),
	}))

	resp, err := f.client.UpdateTaskStatus(ctx, &UpdateTaskStatusRequest{TaskID: "T1", Status: "GENERATED", AgentID: "agent-1", GitBranch: "feat/login"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Message, "no assigned agent")

	stored, err := f.tasks.Get(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusCreated, stored.Status)
	assert.Empty(t, stored.GitBranch)
	assert.Zero(t, stored.Version)
}

func TestServer_SubscribeStreamsDispatches(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, done := listen(ctx, f.client, "agent-1")
	require.Eventually(t, func() bool { return f.registry.Connected("agent-1") }, 2*time.Second, 5*time.Millisecond)

	msg := dispatch.NewMessage(dispatch.KindAssign, "T1", "add login page", time.Now())
	require.True(t, f.registry.Send("agent-1", msg))
	got := nextMessage(t, msgs, done)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, dispatch.KindAssign, got.Kind)
	assert.Equal(t, "T1", got.TaskID)

	push := dispatch.NewMessage(dispatch.KindPush, "T1", "add login page", time.Now())
	push.Push = &dispatch.PushOptions{CreatePR: true, BaseBranch: "main"}
	require.True(t, f.registry.Send("agent-1", push))
	got = nextMessage(t, msgs, done)
	assert.Equal(t, dispatch.KindPush, got.Kind)
	require.NotNil(t, got.Push)
	assert.True(t, got.Push.CreatePR)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "Listen did not return after cancel")
	}
	require.Eventually(t, func() bool { return !f.registry.Connected("agent-1") }, 2*time.Second, 5*time.Millisecond)
}

func TestServer_SubscribeRequiresAgentID(t *testing.T) {
	f := newFixture(t)
	stream, err := f.client.Subscribe(context.Background(), &SubscribeRequest{})
	require.NoError(t, err)
	defer stream.Close()
	assert.False(t, stream.Receive())
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(stream.Err()))
}
