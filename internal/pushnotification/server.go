package pushnotification

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/prism/prism/internal/config"
	"github.com/prism/prism/internal/pushsubscription"
	"github.com/prism/prism/pkg/cerr"
)

type Server struct {
	vapid    *config.VAPIDEnv
	repo     pushsubscription.Repository
	notifier Notifier
}

func NewServer(vapid *config.VAPIDEnv, repo pushsubscription.Repository, n Notifier) *Server {
	return &Server{vapid: vapid, repo: repo, notifier: n}
}

func (s *Server) Routes(r chi.Router) {
	r.Get("/vapid-public-key", s.GetVAPIDPublicKey)
	r.Post("/subscriptions", s.Register)
	r.Delete("/subscriptions", s.Unregister)
	r.Post("/test", s.SendTest)
}

func (s *Server) GetVAPIDPublicKey(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.vapid.VAPIDPublicKey == "" {
		cerr.SetNewJSONError(ctx, cerr.FailedPrecondition, "VAPID keys not configured", nil)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]string{"publicKey": s.vapid.VAPIDPublicKey})
}

type registerRequest struct {
	Endpoint  string `json:"endpoint"`
	P256dhKey string `json:"p256dhKey"`
	AuthKey   string `json:"authKey"`
}

// Register is idempotent per endpoint; registering again replaces the keys.
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req registerRequest
	if err := cerr.DecodeJSONBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	switch {
	case req.Endpoint == "":
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "endpoint is required", nil)
		return
	case req.P256dhKey == "":
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "p256dhKey is required", nil)
		return
	case req.AuthKey == "":
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "authKey is required", nil)
		return
	}

	sub := &pushsubscription.Subscription{
		Endpoint:  req.Endpoint,
		P256dhKey: req.P256dhKey,
		AuthKey:   req.AuthKey,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Save(ctx, sub); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]string{"id": sub.ID})
}

type unregisterRequest struct {
	Endpoint string `json:"endpoint"`
}

func (s *Server) Unregister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req unregisterRequest
	if err := cerr.DecodeJSONBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if req.Endpoint == "" {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "endpoint is required", nil)
		return
	}
	if err := s.repo.DeleteByEndpoint(ctx, req.Endpoint); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, struct{}{})
}

func (s *Server) SendTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sent := s.notifier.SendToAll(ctx, &Payload{
		Title: "Prism test",
		Body:  "Push notifications are working!",
	})
	cerr.SetJSONResponse(ctx, map[string]int{"delivered": sent})
}
