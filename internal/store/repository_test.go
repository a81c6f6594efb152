package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"judge-engine/internal/store"
)

func newTestRepo(t *testing.T) store.Repository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&store.Job{}))
	return store.NewWithDB(db)
}

func newPendingJob(id, language string) *store.Job {
	now := time.Now().UTC()
	return &store.Job{
		ID:         id,
		SourceCode: "print('hi')",
		Language:   language,
		Status:     store.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestInsertAndGetByID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	job := newPendingJob("job-1", "python3")
	require.NoError(t, repo.Insert(ctx, job))

	got, err := repo.GetByID(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, store.StatusPending, got.Status)
	require.Equal(t, "python3", got.Language)
}

func TestGetByIDNotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateResultIsReadYourWrite(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	job := newPendingJob("job-2", "python3")
	require.NoError(t, repo.Insert(ctx, job))

	workerID := 3
	exitCode := 0
	elapsed := int64(42)
	memKB := int64(1024)
	now := time.Now().UTC()

	job.Status = store.StatusCompleted
	job.WorkerID = &workerID
	job.Stdout = "hi\n"
	job.ExitCode = &exitCode
	job.ExecutionTimeMs = &elapsed
	job.MemoryUsageKB = &memKB
	job.StartedAt = &now
	job.CompletedAt = &now

	require.NoError(t, repo.UpdateResult(ctx, job))

	got, err := repo.GetByID(ctx, "job-2")
	require.NoError(t, err)
	require.Equal(t, store.StatusCompleted, got.Status)
	require.Equal(t, "hi\n", got.Stdout)
	require.NotNil(t, got.WorkerID)
	require.Equal(t, 3, *got.WorkerID)
	require.NotNil(t, got.ExitCode)
	require.Equal(t, 0, *got.ExitCode)
}

func TestListOrdersNewestFirstAndFilters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c"} {
		j := newPendingJob(id, "python3")
		j.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Insert(ctx, j))
	}

	completed, err := repo.GetByID(ctx, "b")
	require.NoError(t, err)
	completed.Status = store.StatusCompleted
	require.NoError(t, repo.UpdateResult(ctx, completed))

	jobs, total, err := repo.List(ctx, store.ListFilter{Limit: 10})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Equal(t, "c", jobs[0].ID)
	require.Equal(t, "b", jobs[1].ID)
	require.Equal(t, "a", jobs[2].ID)

	filtered, total, err := repo.List(ctx, store.ListFilter{Status: store.StatusCompleted, Limit: 10})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, filtered, 1)
	require.Equal(t, "b", filtered[0].ID)
}

func TestCountByStatus(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, newPendingJob("x", "python3")))
	require.NoError(t, repo.Insert(ctx, newPendingJob("y", "python3")))

	count, err := repo.CountByStatus(ctx, store.StatusPending)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	count, err = repo.CountByStatus(ctx, store.StatusCompleted)
	require.NoError(t, err)
	require.EqualValues(t, 0, count)
}

func TestPing(t *testing.T) {
	repo := newTestRepo(t)
	require.NoError(t, repo.Ping(context.Background()))
}
