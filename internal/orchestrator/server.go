package orchestrator

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prism/prism/internal/dispatch"
	"github.com/prism/prism/internal/task"
	"github.com/prism/prism/pkg/cerr"
)

// UserHeader names the acting user in audit entries. Requests without it
// are recorded as anonymous.
const UserHeader = "X-Prism-User"

type Server struct {
	orch *Orchestrator
}

func NewServer(orch *Orchestrator) *Server {
	return &Server{orch: orch}
}

// Routes mounts the task mutations next to the read routes of task.Server.
func (s *Server) Routes(r chi.Router) {
	r.Post("/", s.CreateTask)
	r.Post("/{taskID}/assign", s.AssignTask)
	r.Post("/{taskID}/redispatch", s.Redispatch)
	r.Post("/{taskID}/commit", s.ApproveCommit)
	r.Post("/{taskID}/push", s.ApprovePush)
}

type dispatchView struct {
	MessageID string        `json:"messageId"`
	Kind      dispatch.Kind `json:"kind"`
	Delivered bool          `json:"delivered"`
}

type outcomeResponse struct {
	Task     *task.View    `json:"task"`
	Dispatch *dispatchView `json:"dispatch,omitempty"`
}

func newOutcomeResponse(out *Outcome) *outcomeResponse {
	resp := &outcomeResponse{Task: task.NewView(out.Task)}
	if out.Message != nil {
		resp.Dispatch = &dispatchView{
			MessageID: out.Message.ID,
			Kind:      out.Message.Kind,
			Delivered: out.Delivered,
		}
	}
	return resp
}

type createTaskRequest struct {
	ProjectID       string `json:"projectId"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Priority        string `json:"priority"`
	AssignedAgentID string `json:"assignedAgentId"`
	AutoCommit      bool   `json:"autoCommit"`
	AutoPush        bool   `json:"autoPush"`
	ProjectPath     string `json:"projectPath"`
	TargetRepo      string `json:"targetRepo"`
	PRBaseBranch    string `json:"prBaseBranch"`
}

func (s *Server) CreateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createTaskRequest
	if err := cerr.DecodeJSONBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	out, err := s.orch.CreateTask(ctx, CreateTaskRequest{
		ProjectID:       req.ProjectID,
		Title:           req.Title,
		Description:     req.Description,
		Priority:        req.Priority,
		AssignedAgentID: req.AssignedAgentID,
		CreatedBy:       r.Header.Get(UserHeader),
		AutoCommit:      req.AutoCommit,
		AutoPush:        req.AutoPush,
		ProjectPath:     req.ProjectPath,
		TargetRepo:      req.TargetRepo,
		PRBaseBranch:    req.PRBaseBranch,
	})
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, newOutcomeResponse(out))
}

type assignTaskRequest struct {
	AgentID string `json:"agentId"`
}

func (s *Server) AssignTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req assignTaskRequest
	if err := cerr.DecodeJSONBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	out, err := s.orch.AssignTask(ctx, chi.URLParam(r, "taskID"), req.AgentID, r.Header.Get(UserHeader))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, newOutcomeResponse(out))
}

func (s *Server) Redispatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out, err := s.orch.Redispatch(ctx, chi.URLParam(r, "taskID"), r.Header.Get(UserHeader))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, newOutcomeResponse(out))
}

type commitRequest struct {
	CommitMessage string `json:"commitMessage"`
}

func (s *Server) ApproveCommit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req commitRequest
	if err := cerr.DecodeJSONBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	out, err := s.orch.ApproveCommit(ctx, chi.URLParam(r, "taskID"), r.Header.Get(UserHeader),
		dispatch.CommitOptions{Message: req.CommitMessage})
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, newOutcomeResponse(out))
}

type pushRequest struct {
	CreatePR     *bool    `json:"createPr"`
	PRTitle      string   `json:"prTitle"`
	PRBody       string   `json:"prBody"`
	PRBaseBranch string   `json:"prBaseBranch"`
	PRReviewers  []string `json:"prReviewers"`
	PRLabels     []string `json:"prLabels"`
}

func (s *Server) ApprovePush(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req pushRequest
	if err := cerr.DecodeJSONBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	out, err := s.orch.ApprovePush(ctx, chi.URLParam(r, "taskID"), r.Header.Get(UserHeader), PushRequest{
		CreatePR:   req.CreatePR,
		PRTitle:    req.PRTitle,
		PRBody:     req.PRBody,
		BaseBranch: req.PRBaseBranch,
		Reviewers:  req.PRReviewers,
		Labels:     req.PRLabels,
	})
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, newOutcomeResponse(out))
}
