package pushnotification

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prism/prism/internal/config"
	"github.com/prism/prism/pkg/cerr"
)

func call(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Subscriptions(t *testing.T) {
	repo := newRepo(t)
	vapid := &config.VAPIDEnv{}
	r := chi.NewRouter()
	r.Use(cerr.NewJSONResponseChiMiddleware())
	r.Route("/push", NewServer(vapid, repo, &recordingNotifier{}).Routes)

	rec := call(r, http.MethodGet, "/push/vapid-public-key", "")
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	vapid.VAPIDPublicKey = "BPublic"
	rec = call(r, http.MethodGet, "/push/vapid-public-key", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"publicKey":"BPublic"}`, rec.Body.String())

	body := `{"endpoint":"https://push.example.com/1","p256dhKey":"k","authKey":"a"}`
	require.Equal(t, http.StatusOK, call(r, http.MethodPost, "/push/subscriptions", body).Code)
	require.Equal(t, http.StatusOK, call(r, http.MethodPost, "/push/subscriptions", body).Code)
	subs, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	rec = call(r, http.MethodPost, "/push/subscriptions", `{"endpoint":"https://push.example.com/2"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	unregister := `{"endpoint":"https://push.example.com/1"}`
	require.Equal(t, http.StatusOK, call(r, http.MethodDelete, "/push/subscriptions", unregister).Code)
	assert.Equal(t, http.StatusNotFound, call(r, http.MethodDelete, "/push/subscriptions", unregister).Code)

	rec = call(r, http.MethodPost, "/push/test", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"delivered":1}`, rec.Body.String())
}
