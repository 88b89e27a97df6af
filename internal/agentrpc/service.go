// Package agentrpc exposes the agent facing connect service.
package agentrpc

import (
	"context"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/prism/prism/internal/dispatch"
	"github.com/prism/prism/internal/ingestion"
	"github.com/prism/prism/pkg/cerr"
)

const ServiceName = "prism.v1.AgentService"

const (
	RegisterAgentProcedure    = "/" + ServiceName + "/RegisterAgent"
	HeartbeatProcedure        = "/" + ServiceName + "/Heartbeat"
	UpdateTaskStatusProcedure = "/" + ServiceName + "/UpdateTaskStatus"
	SubscribeProcedure        = "/" + ServiceName + "/Subscribe"
)

type Server struct {
	registry  *dispatch.Registry
	ingestion *ingestion.Service
}

func NewServer(registry *dispatch.Registry, svc *ingestion.Service) *Server {
	return &Server{registry: registry, ingestion: svc}
}

// RegisterAgent always succeeds. Agents are not required to exist in the
// catalog before they report.
func (s *Server) RegisterAgent(ctx context.Context, req *connect.Request[RegisterAgentRequest]) (*connect.Response[RegisterAgentResponse], error) {
	slog.InfoContext(ctx, "agent registered", "agent_id", req.Msg.AgentID, "version", req.Msg.Version)
	return connect.NewResponse(&RegisterAgentResponse{
		Success: true,
		Message: "registered",
	}), nil
}

func (s *Server) Heartbeat(ctx context.Context, req *connect.Request[HeartbeatRequest]) (*connect.Response[HeartbeatResponse], error) {
	if !s.registry.Touch(req.Msg.AgentID) {
		slog.DebugContext(ctx, "heartbeat from agent that is not listening", "agent_id", req.Msg.AgentID)
	}
	return connect.NewResponse(&HeartbeatResponse{Acknowledged: true}), nil
}

// UpdateTaskStatus reports every rejection in the response body, a missing
// task id included.
func (s *Server) UpdateTaskStatus(ctx context.Context, req *connect.Request[UpdateTaskStatusRequest]) (*connect.Response[UpdateTaskStatusResponse], error) {
	m := req.Msg
	if m.TaskID == "" {
		return connect.NewResponse(&UpdateTaskStatusResponse{Success: false, Message: "taskId is required"}), nil
	}
	_, err := s.ingestion.Report(ctx, ingestion.Report{
		TaskID:        m.TaskID,
		Status:        m.Status,
		Details:       m.Details,
		AgentID:       m.AgentID,
		GitBranch:     m.GitBranch,
		GitCommitHash: m.GitCommitHash,
		GitPRURL:      m.GitPRURL,
	})
	if err != nil {
		slog.WarnContext(ctx, "status report not applied", "task_id", m.TaskID, "status", m.Status, "code", cerr.CodeOf(err).String(), "error", err)
		return connect.NewResponse(&UpdateTaskStatusResponse{Success: false, Message: err.Error()}), nil
	}
	return connect.NewResponse(&UpdateTaskStatusResponse{Success: true}), nil
}

// Subscribe streams dispatch messages to the agent until it disconnects or
// a newer Subscribe for the same agent takes over.
func (s *Server) Subscribe(ctx context.Context, req *connect.Request[SubscribeRequest], stream *connect.ServerStream[DispatchMessage]) error {
	agentID := req.Msg.AgentID
	if agentID == "" {
		return cerr.NewError(cerr.InvalidArgument, "agentId is required", nil).ConnectError()
	}

	slog.InfoContext(ctx, "agent connected", "agent_id", agentID)
	ch, release := s.registry.Connect(agentID)
	defer func() {
		release()
		slog.InfoContext(ctx, "agent disconnected", "agent_id", agentID)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// NewHandler builds the HTTP handler for the service and the path prefix it
// must be mounted on.
func NewHandler(s *Server, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(codec{})}, opts...)
	registerAgent := connect.NewUnaryHandler(RegisterAgentProcedure, s.RegisterAgent, opts...)
	heartbeat := connect.NewUnaryHandler(HeartbeatProcedure, s.Heartbeat, opts...)
	updateTaskStatus := connect.NewUnaryHandler(UpdateTaskStatusProcedure, s.UpdateTaskStatus, opts...)
	subscribe := connect.NewServerStreamHandler(SubscribeProcedure, s.Subscribe, opts...)

	return "/" + ServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case RegisterAgentProcedure:
			registerAgent.ServeHTTP(w, r)
		case HeartbeatProcedure:
			heartbeat.ServeHTTP(w, r)
		case UpdateTaskStatusProcedure:
			updateTaskStatus.ServeHTTP(w, r)
		case SubscribeProcedure:
			subscribe.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
