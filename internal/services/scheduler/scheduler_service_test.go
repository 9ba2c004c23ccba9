package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/storage/badger"
)

type noopPresenter struct{}

func (noopPresenter) PublishPhase(_ context.Context, _ *models.PresentationEvent) {}
func (noopPresenter) PublishError(_ context.Context, _ uint64, _ models.PresentationPhase, _ string) {
}

func newTestStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()
	mgr, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func TestSweepStaleFailsStuckJobs(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	job := models.NewResearchJob("user-1", models.JobModeDiscovery, "seed", models.JobConfig{})
	id, err := storage.Jobs().CreateJob(ctx, job)
	require.NoError(t, err)
	moved, err := storage.Jobs().UpdateStatusCAS(ctx, id, models.JobStatusCreated, models.JobStatusReadyToIngest)
	require.NoError(t, err)
	require.True(t, moved)

	svc := NewService(storage, noopPresenter{}, nil, nil, common.NewDefaultConfig().Scheduler, common.MailboxConfig{}, arbor.NewLogger())

	// A negative cutoff puts the threshold in the future, so the job
	// just touched above already counts as stale.
	require.NoError(t, svc.sweepStale(ctx, -1))

	got, err := storage.Jobs().GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Contains(t, got.Error, "no progress")
}

func TestSweepStaleSkipsWaitingJobs(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	job := models.NewResearchJob("user-1", models.JobModeDiscovery, "seed", models.JobConfig{})
	id, err := storage.Jobs().CreateJob(ctx, job)
	require.NoError(t, err)
	moved, err := storage.Jobs().UpdateStatusCAS(ctx, id, models.JobStatusCreated, models.JobStatusNeedMoreInput)
	require.NoError(t, err)
	require.True(t, moved)

	svc := NewService(storage, noopPresenter{}, nil, nil, common.NewDefaultConfig().Scheduler, common.MailboxConfig{}, arbor.NewLogger())
	require.NoError(t, svc.sweepStale(ctx, -1))

	got, err := storage.Jobs().GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusNeedMoreInput, got.Status)
}

func TestStartRegistersEnabledTasks(t *testing.T) {
	storage := newTestStorage(t)
	cfg := common.NewDefaultConfig().Scheduler
	cfg.ImpactRefreshEnabled = false

	svc := NewService(storage, noopPresenter{}, nil, nil, cfg, common.MailboxConfig{}, arbor.NewLogger())
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Stop)

	statuses := svc.Statuses()
	require.Len(t, statuses, 1)
	assert.Equal(t, "stale-sweep", statuses[0].Name)
	assert.NotNil(t, statuses[0].NextRun)

	assert.Error(t, svc.Start())
	assert.Error(t, svc.Trigger("unknown"))
}

func TestStartRejectsBadCutoff(t *testing.T) {
	cfg := common.NewDefaultConfig().Scheduler
	cfg.StaleCutoff = "soon"
	svc := NewService(newTestStorage(t), noopPresenter{}, nil, nil, cfg, common.MailboxConfig{}, arbor.NewLogger())
	assert.Error(t, svc.Start())
}
