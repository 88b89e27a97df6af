package task

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/prism/prism/internal/lifecycle"
	"github.com/prism/prism/pkg/cerr"
)

const defaultPageSize = 50

type Server struct {
	repo Repository
}

func NewServer(repo Repository) *Server {
	return &Server{repo: repo}
}

// Routes mounts the read endpoints. Mutations go through the orchestrator.
func (s *Server) Routes(r chi.Router) {
	r.Get("/", s.ListTasks)
	r.Get("/{taskID}", s.GetTask)
}

type listTasksResponse struct {
	Tasks []*View `json:"tasks"`
	Total int     `json:"total"`
}

func (s *Server) ListTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	limit, offset, err := Pagination(q.Get("limit"), q.Get("offset"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	f := Filter{
		ProjectID:       q.Get("projectId"),
		AssignedAgentID: q.Get("agentId"),
		Status:          lifecycle.Status(q.Get("status")),
	}
	if f.Status != "" && !f.Status.Valid() {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "unknown status", nil)
		return
	}
	tasks, total, err := s.repo.List(ctx, f, limit, offset)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	views := make([]*View, len(tasks))
	for i, t := range tasks {
		views[i] = NewView(t)
	}
	cerr.SetJSONResponse(ctx, &listTasksResponse{Tasks: views, Total: total})
}

type statsResponse struct {
	TotalTasks    int                      `json:"totalTasks"`
	TasksByStatus map[lifecycle.Status]int `json:"tasksByStatus"`
}

// Stats counts tasks per status. Every status is present, zero or not.
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := &statsResponse{TasksByStatus: make(map[lifecycle.Status]int, len(lifecycle.Statuses))}
	for _, st := range lifecycle.Statuses {
		_, n, err := s.repo.List(ctx, Filter{Status: st}, 1, 0)
		if err != nil {
			cerr.SetJSONError(ctx, err)
			return
		}
		resp.TasksByStatus[st] = n
		resp.TotalTasks += n
	}
	cerr.SetJSONResponse(ctx, resp)
}

func (s *Server) GetTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.repo.Get(ctx, chi.URLParam(r, "taskID"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, NewView(t))
}

// Pagination parses limit and offset query values.
func Pagination(limitStr, offsetStr string) (limit, offset int, err error) {
	limit = defaultPageSize
	if limitStr != "" {
		if limit, err = strconv.Atoi(limitStr); err != nil || limit < 0 {
			return 0, 0, cerr.NewError(cerr.InvalidArgument, "limit must be a non-negative integer", err)
		}
	}
	if offsetStr != "" {
		if offset, err = strconv.Atoi(offsetStr); err != nil || offset < 0 {
			return 0, 0, cerr.NewError(cerr.InvalidArgument, "offset must be a non-negative integer", err)
		}
	}
	return limit, offset, nil
}
