package activitylog

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prism/prism/internal/task"
	"github.com/prism/prism/pkg/cerr"
)

type Server struct {
	repo Repository
}

func NewServer(repo Repository) *Server {
	return &Server{repo: repo}
}

type listActivitiesResponse struct {
	Activities []*Entry `json:"activities"`
	Total      int      `json:"total"`
}

// ListActivities serves the timeline of the task named by the taskID URL
// parameter.
func (s *Server) ListActivities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset, err := task.Pagination(r.URL.Query().Get("limit"), r.URL.Query().Get("offset"))
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	entries, total, err := s.repo.ListByTask(ctx, chi.URLParam(r, "taskID"), limit, offset)
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	if entries == nil {
		entries = []*Entry{}
	}
	cerr.SetJSONResponse(ctx, &listActivitiesResponse{Activities: entries, Total: total})
}
