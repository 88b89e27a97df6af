package pushnotification

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prism/prism/internal/config"
	"github.com/prism/prism/internal/pushsubscription"
	"github.com/prism/prism/internal/pushsubscription/repositoryimpl"
	"github.com/prism/prism/pkg/storage"
)

func newVAPID(t *testing.T) *config.VAPIDEnv {
	t.Helper()
	private, public, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	return &config.VAPIDEnv{
		VAPIDPublicKey:  public,
		VAPIDPrivateKey: private,
		VAPIDContact:    "mailto:ops@example.com",
	}
}

func newSubscription(t *testing.T, endpoint string) *pushsubscription.Subscription {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return &pushsubscription.Subscription{
		Endpoint:  endpoint,
		P256dhKey: base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		AuthKey:   base64.RawURLEncoding.EncodeToString(auth),
		CreatedAt: time.Now(),
	}
}

func newRepo(t *testing.T) *repositoryimpl.YAMLRepository {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return repositoryimpl.NewYAMLRepository(s)
}

func TestSender_SendToAllRemovesExpiredSubscriptions(t *testing.T) {
	var received atomic.Int32
	push := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		if r.URL.Path == "/gone" {
			w.WriteHeader(http.StatusGone)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer push.Close()

	ctx := context.Background()
	repo := newRepo(t)
	require.NoError(t, repo.Save(ctx, newSubscription(t, push.URL+"/ok")))
	require.NoError(t, repo.Save(ctx, newSubscription(t, push.URL+"/gone")))

	sender := NewSender(newVAPID(t), repo)
	sent := sender.SendToAll(ctx, &Payload{Title: "Commit approval needed", Body: "add login page"})
	assert.Equal(t, 1, sent)
	assert.EqualValues(t, 2, received.Load())

	subs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, push.URL+"/ok", subs[0].Endpoint)
}

func TestSender_SkipsWithoutVAPIDKeys(t *testing.T) {
	var received atomic.Int32
	push := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer push.Close()

	ctx := context.Background()
	repo := newRepo(t)
	require.NoError(t, repo.Save(ctx, newSubscription(t, push.URL)))

	sender := NewSender(&config.VAPIDEnv{}, repo)
	assert.Zero(t, sender.SendToAll(ctx, &Payload{Title: "x"}))
	assert.Zero(t, received.Load())
}

func TestSender_SendToAllConcurrentSubscriptions(t *testing.T) {
	var received atomic.Int32
	var lengths sync.Map
	push := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		received.Add(1)
		lengths.Store(r.URL.Path, len(body))
		w.WriteHeader(http.StatusCreated)
	}))
	defer push.Close()

	ctx := context.Background()
	repo := newRepo(t)
	const n = 2 * maxInFlight
	for i := range n {
		require.NoError(t, repo.Save(ctx, newSubscription(t, fmt.Sprintf("%s/sub/%d", push.URL, i))))
	}

	sender := NewSender(newVAPID(t), repo)
	sent := sender.SendToAll(ctx, &Payload{Title: "Push approval needed", Body: "add login page", Tag: "T1"})
	assert.Equal(t, n, sent)
	assert.EqualValues(t, n, received.Load())

	// Every subscriber gets a record of the same padded size.
	var sizes []int
	lengths.Range(func(_, v any) bool {
		sizes = append(sizes, v.(int))
		return true
	})
	require.Len(t, sizes, n)
	for _, size := range sizes {
		assert.Equal(t, sizes[0], size)
	}
}
