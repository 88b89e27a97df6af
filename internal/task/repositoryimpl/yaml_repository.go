package repositoryimpl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/prism/prism/internal/task"
	"github.com/prism/prism/pkg/cerr"
	"github.com/prism/prism/pkg/storage"
)

const tasksPrefix = "tasks"

// YAMLRepository stores one YAML document per task. The version check in
// Update is guarded by an in-process mutex, so a storage location must not
// be shared by several server processes.
type YAMLRepository struct {
	storage storage.Storage
	mu      sync.Mutex
	now     func() time.Time
}

func NewYAMLRepository(s storage.Storage) *YAMLRepository {
	return &YAMLRepository{storage: s, now: time.Now}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", tasksPrefix, id)
}

func (r *YAMLRepository) Create(ctx context.Context, t *task.Task) error {
	data, err := yaml.Marshal(t)
	if err != nil {
		return cerr.WrapMarshalError("task", err)
	}
	if err := r.storage.WriteNew(ctx, path(t.ID), data); err != nil {
		return cerr.WrapStorageWriteError("task", err)
	}
	return nil
}

func (r *YAMLRepository) Get(ctx context.Context, id string) (*task.Task, error) {
	data, err := r.storage.Read(ctx, path(id))
	if err != nil {
		return nil, cerr.WrapStorageReadError("task", err)
	}
	return decode(data)
}

func decode(data []byte) (*task.Task, error) {
	var t task.Task
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, cerr.WrapUnmarshalError("task", err)
	}
	return &t, nil
}

func (r *YAMLRepository) List(ctx context.Context, f task.Filter, limit, offset int) ([]*task.Task, int, error) {
	paths, err := r.storage.List(ctx, tasksPrefix)
	if err != nil {
		return nil, 0, cerr.WrapStorageReadError("tasks", err)
	}

	var all []*task.Task
	for _, p := range paths {
		data, err := r.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		t, err := decode(data)
		if err != nil || !f.Match(t) {
			continue
		}
		all = append(all, t)
	}

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (r *YAMLRepository) Update(ctx context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, err := r.Get(ctx, t.ID)
	if err != nil {
		return err
	}
	if stored.Version != t.Version {
		return cerr.NewError(cerr.Aborted, "task was modified concurrently",
			fmt.Errorf("task %s: stored version %d, update based on %d", t.ID, stored.Version, t.Version))
	}

	next := *t
	next.Version++
	next.UpdatedAt = r.now()
	data, err := yaml.Marshal(&next)
	if err != nil {
		return cerr.WrapMarshalError("task", err)
	}
	if err := r.storage.Write(ctx, path(t.ID), data); err != nil {
		return cerr.WrapStorageWriteError("task", err)
	}
	t.Version = next.Version
	t.UpdatedAt = next.UpdatedAt
	return nil
}
