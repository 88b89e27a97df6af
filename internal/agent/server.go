package agent

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/prism/prism/pkg/cerr"
)

type Server struct {
	repo Repository
}

func NewServer(repo Repository) *Server {
	return &Server{repo: repo}
}

func (s *Server) Routes(r chi.Router) {
	r.Get("/", s.ListAgents)
	r.Post("/", s.CreateAgent)
	r.Get("/{agentID}", s.GetAgent)
}

// createAgentRequest uses pointers for the capability flags so that an
// omitted flag falls back to DefaultCapabilities.
type createAgentRequest struct {
	Name               string `json:"name"`
	Role               string `json:"role"`
	Description        string `json:"description"`
	ModelName          string `json:"modelName"`
	CanWriteCode       *bool  `json:"canWriteCode"`
	CanRunTests        *bool  `json:"canRunTests"`
	CanDeploy          *bool  `json:"canDeploy"`
	CanCreateDocuments *bool  `json:"canCreateDocuments"`
	CanMergePR         *bool  `json:"canMergePr"`
}

func (req *createAgentRequest) capabilities() Capabilities {
	c := DefaultCapabilities
	for _, f := range []struct {
		in  *bool
		out *bool
	}{
		{req.CanWriteCode, &c.CanWriteCode},
		{req.CanRunTests, &c.CanRunTests},
		{req.CanDeploy, &c.CanDeploy},
		{req.CanCreateDocuments, &c.CanCreateDocuments},
		{req.CanMergePR, &c.CanMergePR},
	} {
		if f.in != nil {
			*f.out = *f.in
		}
	}
	return c
}

func (s *Server) CreateAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createAgentRequest
	if err := cerr.DecodeJSONBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		cerr.SetJSONError(ctx, cerr.NewError(cerr.InvalidArgument, "name is required", nil).
			AddDetailMessage("name must not be empty", "agent.name.required"))
		return
	}
	now := time.Now()
	a := &Agent{
		ID:           ulid.Make().String(),
		Name:         strings.TrimSpace(req.Name),
		Role:         req.Role,
		Description:  req.Description,
		ModelName:    req.ModelName,
		Capabilities: req.capabilities(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, a)
}

func (s *Server) GetAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	a, err := s.repo.Get(ctx, chi.URLParam(r, "agentID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, a)
}

type listAgentsResponse struct {
	Agents []*Agent `json:"agents"`
	Total  int      `json:"total"`
}

func (s *Server) ListAgents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agents, total, err := s.repo.List(ctx, 0, 0)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if agents == nil {
		agents = []*Agent{}
	}
	cerr.SetJSONResponse(ctx, &listAgentsResponse{Agents: agents, Total: total})
}
