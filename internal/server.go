package internal

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/prism/prism/internal/activitylog"
	"github.com/prism/prism/internal/agent"
	"github.com/prism/prism/internal/agentrpc"
	"github.com/prism/prism/internal/config"
	"github.com/prism/prism/internal/notifier"
	"github.com/prism/prism/internal/orchestrator"
	"github.com/prism/prism/internal/project"
	"github.com/prism/prism/internal/pushnotification"
	"github.com/prism/prism/internal/task"
	"github.com/prism/prism/pkg/cerr"
	"github.com/prism/prism/pkg/clog"
)

const apiKeyQueryParam = "api_key"

type Server struct {
	mu     sync.Mutex
	server *http.Server
	closed bool
	env    *config.Env

	taskServer         *task.Server
	orchestratorServer *orchestrator.Server
	activityServer     *activitylog.Server
	projectServer      *project.Server
	agentServer        *agent.Server
	pushServer         *pushnotification.Server
	agentRPCServer     *agentrpc.Server
	websocketHandler   *notifier.WebSocketHandler
}

func NewServer(
	env *config.Env,
	taskServer *task.Server,
	orchestratorServer *orchestrator.Server,
	activityServer *activitylog.Server,
	projectServer *project.Server,
	agentServer *agent.Server,
	pushServer *pushnotification.Server,
	agentRPCServer *agentrpc.Server,
	websocketHandler *notifier.WebSocketHandler,
) *Server {
	return &Server{
		env:                env,
		taskServer:         taskServer,
		orchestratorServer: orchestratorServer,
		activityServer:     activityServer,
		projectServer:      projectServer,
		agentServer:        agentServer,
		pushServer:         pushServer,
		agentRPCServer:     agentRPCServer,
		websocketHandler:   websocketHandler,
	}
}

// Handler builds the full route tree behind the API key check.
func (s *Server) Handler() http.Handler {
	api := chi.NewRouter()
	api.Route("/api/v1", func(r chi.Router) {
		r.Use(
			clog.SlogChiMiddleware(),
			cerr.NewJSONResponseChiMiddleware(),
		)
		r.Route("/tasks", func(r chi.Router) {
			s.taskServer.Routes(r)
			s.orchestratorServer.Routes(r)
			r.Get("/{taskID}/activities", s.activityServer.ListActivities)
		})
		r.Get("/dashboard/stats", s.taskServer.Stats)
		r.Route("/projects", s.projectServer.Routes)
		r.Route("/agents", s.agentServer.Routes)
		r.Route("/push", s.pushServer.Routes)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.SetNewJSONError(r.Context(), cerr.NotFound, "not found", nil)
		})
	})

	ws := chi.NewRouter()
	ws.Get("/ws/tasks", s.websocketHandler.ServeAll)
	ws.Get("/ws/tasks/{taskID}", s.websocketHandler.ServeTask)

	mux := http.NewServeMux()
	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/", api)
	mux.Handle("/ws/", ws)
	mux.Handle(grpchealth.NewHandler(grpchealth.NewStaticChecker(agentrpc.ServiceName)))
	mux.Handle(agentrpc.NewHandler(s.agentRPCServer, connect.WithInterceptors(s.interceptors()...)))

	return cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.apiKeyMiddleware(mux))
}

// ListenAndServe serves until Shutdown. ctx is the base context of every
// request, so cancelling it ends open streams and websockets.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	srv := &http.Server{
		Addr:        addr,
		Handler:     h2c.NewHandler(s.Handler(), &http2.Server{}),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return http.ErrServerClosed
	}
	s.server = srv
	s.mu.Unlock()
	return srv.ListenAndServe()
}

// Shutdown stops the server. A later ListenAndServe returns
// http.ErrServerClosed immediately.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) interceptors() []connect.Interceptor {
	return []connect.Interceptor{
		clog.NewSlogConnectInterceptor(clog.WithConnectFilter(clog.DefaultConnectHealthCheckFilter)),
		cerr.NewConvertConnectErrorInterceptor(),
	}
}

// apiKeyMiddleware accepts the key from X-API-Key or a bearer token.
// Browsers cannot set headers on websocket upgrades, so /ws/ also accepts
// it as a query parameter.
func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/"+grpchealth.HealthV1ServiceName+"/Check" {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if apiKey == "" && strings.HasPrefix(r.URL.Path, "/ws/") {
			apiKey = r.URL.Query().Get(apiKeyQueryParam)
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.env.APIKey)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
