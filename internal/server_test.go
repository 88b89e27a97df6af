package internal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prism/prism/internal/agentrpc"
	"github.com/prism/prism/internal/config"
	"github.com/prism/prism/internal/dispatch"
	"github.com/prism/prism/internal/ingestion"
	"github.com/prism/prism/internal/lifecycle"
	"github.com/prism/prism/internal/notifier"
	"github.com/prism/prism/pkg/storage"
)

const testAPIKey = "secret"

type harness struct {
	t   *testing.T
	app *App
	srv *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	env := &config.Env{
		BaseEnv:     config.BaseEnv{APIKey: testAPIKey},
		NotifierEnv: config.NotifierEnv{SubscriberBuffer: 64, DispatchBuffer: 64},
	}
	app := NewApp(env, NewYAMLStores(s))
	srv := httptest.NewServer(app.Server.Handler())
	t.Cleanup(srv.Close)
	return &harness{t: t, app: app, srv: srv}
}

func (h *harness) do(method, path, body string, withKey bool) (*http.Response, map[string]any) {
	h.t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, strings.NewReader(body))
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	if withKey {
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestServer_APIKey(t *testing.T) {
	h := newHarness(t)

	resp, _ := h.do(http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = h.do(http.MethodGet, "/api/v1/projects", "", false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = h.do(http.MethodGet, "/api/v1/projects", "", true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := h.do(http.MethodGet, "/api/v1/nope", "", true)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", body["code"])

	_, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(h.srv.URL, "http")+"/ws/tasks", nil)
	assert.Error(t, err, "websocket without a key is rejected")
}

func TestServer_TaskLifecycleEndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resp, proj := h.do(http.MethodPost, "/api/v1/projects", `{"name":"web"}`, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, ag := h.do(http.MethodPost, "/api/v1/agents", `{"name":"backend-bot"}`, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	agentID := ag["id"].(string)

	client := agentrpc.NewClient(agentrpc.NewHTTPClient(testAPIKey), h.srv.URL)
	dispatched := make(chan *agentrpc.DispatchMessage, 8)
	listenDone := make(chan error, 1)
	go func() {
		listenDone <- client.Listen(ctx, agentID, func(m *agentrpc.DispatchMessage) error {
			dispatched <- m
			return nil
		})
	}()
	next := func() *agentrpc.DispatchMessage {
		t.Helper()
		select {
		case m := <-dispatched:
			return m
		case err := <-listenDone:
			require.FailNow(t, "dispatch stream ended", "error: %v", err)
		case <-time.After(2 * time.Second):
			require.FailNow(t, "no dispatch message received")
		}
		return nil
	}
	require.Eventually(t, func() bool { return h.app.Registry.Connected(agentID) }, 2*time.Second, 5*time.Millisecond)

	resp, created := h.do(http.MethodPost, "/api/v1/tasks",
		`{"projectId":"`+proj["id"].(string)+`","title":"add login page","assignedAgentId":"`+agentID+`"}`, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	taskID := created["task"].(map[string]any)["id"].(string)
	assert.Equal(t, true, created["dispatch"].(map[string]any)["delivered"])

	assigned := next()
	assert.Equal(t, dispatch.KindAssign, assigned.Kind)
	assert.Equal(t, taskID, assigned.TaskID)

	wsURL := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws/tasks/" + taskID + "?api_key=" + testAPIKey
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return h.app.Hub.SubscriberCount(taskID) == 1 }, 2*time.Second, 5*time.Millisecond)

	update, err := client.UpdateTaskStatus(ctx, &agentrpc.UpdateTaskStatusRequest{TaskID: taskID, Status: "GENERATED", AgentID: agentID})
	require.NoError(t, err)
	require.True(t, update.Success, update.Message)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev notifier.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, notifier.EventStatusUpdate, ev.Type)
	assert.Equal(t, lifecycle.NextActionCommitApproval, ev.NextAction)

	resp, got := h.do(http.MethodGet, "/api/v1/tasks/"+taskID, "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(lifecycle.StatusGenerated), got["status"])
	assert.Equal(t, string(lifecycle.NextActionCommitApproval), got["nextAction"])

	resp, _ = h.do(http.MethodPost, "/api/v1/tasks/"+taskID+"/push", `{}`, true)
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)

	resp, _ = h.do(http.MethodPost, "/api/v1/tasks/"+taskID+"/commit", `{}`, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	commit := next()
	assert.Equal(t, dispatch.KindCommit, commit.Kind)
	require.NotNil(t, commit.Commit)
	assert.Equal(t, "feat: Auto-generated code for task add login page", commit.Commit.Message)

	resp, activities := h.do(http.MethodGet, "/api/v1/tasks/"+taskID+"/activities", "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, activities["total"])
}

func TestServer_DashboardStats(t *testing.T) {
	h := newHarness(t)

	resp, stats := h.do(http.MethodGet, "/api/v1/dashboard/stats", "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, stats["totalTasks"])

	resp, proj := h.do(http.MethodPost, "/api/v1/projects", `{"name":"web"}`, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, ag := h.do(http.MethodPost, "/api/v1/agents", `{"name":"backend-bot"}`, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = h.do(http.MethodPost, "/api/v1/tasks", `{"projectId":"`+proj["id"].(string)+`","title":"add login page"}`, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, created := h.do(http.MethodPost, "/api/v1/tasks",
		`{"projectId":"`+proj["id"].(string)+`","title":"fix footer","assignedAgentId":"`+ag["id"].(string)+`"}`, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	failedID := created["task"].(map[string]any)["id"].(string)

	_, err := h.app.Ingestion.Report(context.Background(), ingestion.Report{TaskID: failedID, Status: "FAILED"})
	require.NoError(t, err)

	resp, stats = h.do(http.MethodGet, "/api/v1/dashboard/stats", "", true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, stats["totalTasks"])
	byStatus := stats["tasksByStatus"].(map[string]any)
	assert.Len(t, byStatus, len(lifecycle.Statuses))
	assert.EqualValues(t, 1, byStatus[string(lifecycle.StatusCreated)])
	assert.EqualValues(t, 1, byStatus[string(lifecycle.StatusFailed)])
	assert.EqualValues(t, 0, byStatus[string(lifecycle.StatusCompleted)])
}
