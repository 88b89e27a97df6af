package repositoryimpl

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/prism/prism/internal/activitylog"
	"github.com/prism/prism/pkg/cerr"
	"github.com/prism/prism/pkg/storage"
)

const activitiesPrefix = "activities"

// YAMLRepository writes each entry as its own document under the task's
// directory. Documents are created with storage.WriteNew and never touched
// again.
type YAMLRepository struct {
	storage storage.Storage
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s}
}

func taskDir(taskID string) string {
	return fmt.Sprintf("%s/%s", activitiesPrefix, taskID)
}

func path(taskID, id string) string {
	return fmt.Sprintf("%s/%s.yaml", taskDir(taskID), id)
}

func (r *YAMLRepository) Append(ctx context.Context, e *activitylog.Entry) error {
	data, err := yaml.Marshal(e)
	if err != nil {
		return cerr.WrapMarshalError("activity log entry", err)
	}
	if err := r.storage.WriteNew(ctx, path(e.TaskID, e.ID), data); err != nil {
		return cerr.WrapStorageWriteError("activity log entry", err)
	}
	return nil
}

// ListByTask relies on ULID file names sorting in creation order.
func (r *YAMLRepository) ListByTask(ctx context.Context, taskID string, limit, offset int) ([]*activitylog.Entry, int, error) {
	paths, err := r.storage.List(ctx, taskDir(taskID))
	if err != nil {
		return nil, 0, cerr.WrapStorageReadError("activity log", err)
	}
	total := len(paths)
	if offset >= total {
		return nil, total, nil
	}
	paths = paths[offset:]
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}

	entries := make([]*activitylog.Entry, 0, len(paths))
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			return nil, 0, cerr.WrapStorageReadError("activity log entry", err)
		}
		var e activitylog.Entry
		if err := yaml.Unmarshal(data, &e); err != nil {
			return nil, 0, cerr.WrapUnmarshalError("activity log entry", err)
		}
		entries = append(entries, &e)
	}
	return entries, total, nil
}
