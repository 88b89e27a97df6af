package repositoryimpl

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prism/prism/internal/lifecycle"
	"github.com/prism/prism/internal/task"
	"github.com/prism/prism/pkg/cerr"
	"github.com/prism/prism/pkg/storage"
)

func newRepo(t *testing.T) *YAMLRepository {
	t.Helper()
	s, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewYAMLRepository(s)
}

func newTask(id, project string) *task.Task {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &task.Task{
		ID:        id,
		ProjectID: project,
		Title:     "Task " + id,
		Priority:  task.PriorityMedium,
		Status:    lifecycle.StatusCreated,
		GitPhase:  lifecycle.GitPhaseNone,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestYAMLRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	in := newTask("01A", "P1")
	started := time.Date(2026, 1, 2, 4, 0, 0, 0, time.UTC)
	in.StartedAt = &started
	require.NoError(t, repo.Create(ctx, in))

	err := repo.Create(ctx, newTask("01A", "P1"))
	assert.True(t, cerr.IsCode(err, cerr.AlreadyExists))

	got, err := repo.Get(ctx, "01A")
	require.NoError(t, err)
	assert.Equal(t, in, got)

	_, err = repo.Get(ctx, "missing")
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestYAMLRepository_UpdateChecksVersion(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	require.NoError(t, repo.Create(ctx, newTask("01A", "P1")))

	first, err := repo.Get(ctx, "01A")
	require.NoError(t, err)
	stale, err := repo.Get(ctx, "01A")
	require.NoError(t, err)

	first.Status = lifecycle.StatusGenerating
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, int64(1), first.Version)

	stale.GitBranch = "feat/x"
	err = repo.Update(ctx, stale)
	assert.True(t, cerr.IsCode(err, cerr.Aborted))

	got, err := repo.Get(ctx, "01A")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusGenerating, got.Status)
	assert.Empty(t, got.GitBranch)
	assert.Equal(t, int64(1), got.Version)

	err = repo.Update(ctx, newTask("missing", "P1"))
	assert.True(t, cerr.IsCode(err, cerr.NotFound))
}

func TestYAMLRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	for _, tk := range []*task.Task{newTask("01A", "P1"), newTask("01B", "P2"), newTask("01C", "P1")} {
		require.NoError(t, repo.Create(ctx, tk))
	}

	all, total, err := repo.List(ctx, task.Filter{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 3)
	assert.Equal(t, "01A", all[0].ID)

	p1, total, err := repo.List(ctx, task.Filter{ProjectID: "P1"}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, p1, 1)
	assert.Equal(t, "01C", p1[0].ID)

	none, total, err := repo.List(ctx, task.Filter{Status: lifecycle.StatusCompleted}, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, none)
}
