package project

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
	r.Get("/", s.ListProjects)
	r.Post("/", s.CreateProject)
	r.Get("/{projectID}", s.GetProject)
}

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	RepoURL     string `json:"repoUrl"`
}

func (s *Server) CreateProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createProjectRequest
	if err := cerr.DecodeJSONBody(r, &req); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		cerr.SetJSONError(ctx, cerr.NewError(cerr.InvalidArgument, "name is required", nil).
			AddDetailMessage("name must not be empty", "project.name.required"))
		return
	}
	p := &Project{
		ID:          ulid.Make().String(),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		RepoURL:     req.RepoURL,
		CreatedAt:   time.Now(),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, p)
}

func (s *Server) GetProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := s.repo.Get(ctx, chi.URLParam(r, "projectID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, p)
}

type listProjectsResponse struct {
	Projects []*Project `json:"projects"`
	Total    int        `json:"total"`
}

func (s *Server) ListProjects(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	projects, total, err := s.repo.List(ctx, 0, 0)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if projects == nil {
		projects = []*Project{}
	}
	cerr.SetJSONResponse(ctx, &listProjectsResponse{Projects: projects, Total: total})
}
