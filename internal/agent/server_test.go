package agent_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prism/prism/internal/agent"
	"github.com/prism/prism/internal/agent/repositoryimpl"
	"github.com/prism/prism/pkg/cerr"
	"github.com/prism/prism/pkg/storage"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	r := chi.NewRouter()
	r.Use(cerr.NewJSONResponseChiMiddleware())
	r.Route("/agents", agent.NewServer(repositoryimpl.NewYAMLRepository(s)).Routes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_CreateAppliesDefaultCapabilities(t *testing.T) {
	h := newRouter(t)

	rec := do(t, h, http.MethodPost, "/agents", `{"name":"backend-bot","role":"BACKEND","canDeploy":true,"canRunTests":false}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created agent.Agent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "backend-bot", created.Name)
	assert.Equal(t, agent.Capabilities{
		CanWriteCode:       true,
		CanRunTests:        false,
		CanDeploy:          true,
		CanCreateDocuments: true,
	}, created.Capabilities)

	rec = do(t, h, http.MethodGet, "/agents/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/agents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Agents []agent.Agent `json:"agents"`
		Total  int           `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, created.ID, list.Agents[0].ID)
}

func TestServer_CreateRejectsBadInput(t *testing.T) {
	h := newRouter(t)

	rec := do(t, h, http.MethodPost, "/agents", `{"name":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "name must not be empty")

	rec = do(t, h, http.MethodPost, "/agents", `{"name":"x","unknown":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/agents/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
