package scan

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmforge/hubscan/errors"
	"github.com/crmforge/hubscan/hubspot"
	"github.com/crmforge/hubscan/logger"
)

func newTestService(t *testing.T, fetcher Fetcher, maxPerTenant, maxGlobal int) (*Service, *Store) {
	t.Helper()
	store := newTestStore(t)
	registry := NewRegistry(maxPerTenant, maxGlobal)
	o := NewOrchestrator(fetcher, &fakePersister{}, fastRetry(), logger.NewTestLogger())
	svc := NewService(store, registry, o, 100, logger.NewTestLogger())
	t.Cleanup(svc.Shutdown)
	return svc, store
}

func onePageFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages: []*hubspot.DealsPage{{Deals: []hubspot.DealRecord{deal("1"), deal("2")}}},
	}
}

// blockingFetcher stalls the first page fetch until the gate is closed, so
// tests can observe a scan while it is running.
func blockingFetcher(gate chan struct{}) *fakeFetcher {
	f := onePageFetcher()
	f.onFetch = func(int) { <-gate }
	return f
}

func TestServiceStartScanCompletes(t *testing.T) {
	svc, store := newTestService(t, onePageFetcher(), 5, 20)

	job, err := svc.StartScan(context.Background(), validConfig())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, job.Status)

	svc.Wait()

	got, err := store.GetJob("tenant-1", "scan-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 2, got.Progress.Processed)
}

func TestServiceStartScanInvalidConfig(t *testing.T) {
	svc, _ := newTestService(t, onePageFetcher(), 5, 20)

	cfg := validConfig()
	cfg.AccessToken = ""
	_, err := svc.StartScan(context.Background(), cfg)
	assert.True(t, errors.IsInvalidConfiguration(err))
}

func TestServiceDuplicateActiveScanConflicts(t *testing.T) {
	gate := make(chan struct{})
	svc, _ := newTestService(t, blockingFetcher(gate), 5, 20)

	_, err := svc.StartScan(context.Background(), validConfig())
	require.NoError(t, err)

	_, err = svc.StartScan(context.Background(), validConfig())
	assert.True(t, errors.IsConflict(err))

	close(gate)
	svc.Wait()
}

func TestServiceRerunAfterTerminalReplacesRow(t *testing.T) {
	svc, store := newTestService(t, onePageFetcher(), 5, 20)

	first, err := svc.StartScan(context.Background(), validConfig())
	require.NoError(t, err)
	svc.Wait()

	second, err := svc.StartScan(context.Background(), validConfig())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	svc.Wait()

	jobs, err := store.ListJobs("tenant-1", nil, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, second.ID, jobs[0].ID)
	assert.Equal(t, StatusCompleted, jobs[0].Status)
}

func TestServicePerTenantLimit(t *testing.T) {
	gate := make(chan struct{})
	svc, _ := newTestService(t, blockingFetcher(gate), 1, 20)

	_, err := svc.StartScan(context.Background(), validConfig())
	require.NoError(t, err)

	cfg := validConfig()
	cfg.ScanID = "scan-2"
	_, err = svc.StartScan(context.Background(), cfg)
	assert.ErrorIs(t, err, errors.ErrScanLimitExceeded)

	close(gate)
	svc.Wait()
}

func TestServiceCancelRunningScan(t *testing.T) {
	gate := make(chan struct{})
	svc, store := newTestService(t, blockingFetcher(gate), 5, 20)

	_, err := svc.StartScan(context.Background(), validConfig())
	require.NoError(t, err)

	require.NoError(t, svc.Cancel("tenant-1", "scan-1"))
	close(gate)
	svc.Wait()

	got, err := store.GetJob("tenant-1", "scan-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	// The page fetched while the cancel was pending is discarded.
	assert.Zero(t, got.Progress.Processed)
}

func TestServiceCancelOrphanedRunningScan(t *testing.T) {
	svc, store := newTestService(t, onePageFetcher(), 5, 20)

	// A row left marked running by an interrupted process: nothing in the
	// registry, no goroutine to observe a cooperative flag.
	job := mustCreateJob(t, store, "scan-1")
	job.start()
	require.NoError(t, store.UpdateJob(job))

	require.NoError(t, svc.Cancel("tenant-1", "scan-1"))

	got, err := store.GetJob("tenant-1", "scan-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)

	// A repeated cancel stays idempotent.
	assert.NoError(t, svc.Cancel("tenant-1", "scan-1"))
}

func TestServiceCancelSemantics(t *testing.T) {
	svc, _ := newTestService(t, onePageFetcher(), 5, 20)

	t.Run("unknown scan", func(t *testing.T) {
		assert.True(t, errors.IsNotFound(svc.Cancel("tenant-1", "missing")))
	})

	_, err := svc.StartScan(context.Background(), validConfig())
	require.NoError(t, err)
	svc.Wait()

	t.Run("completed scan conflicts", func(t *testing.T) {
		assert.True(t, errors.IsConflict(svc.Cancel("tenant-1", "scan-1")))
	})
}

func TestServiceGetStatus(t *testing.T) {
	svc, _ := newTestService(t, onePageFetcher(), 5, 20)

	_, err := svc.GetStatus("tenant-1", "missing")
	assert.True(t, errors.IsNotFound(err))

	_, err = svc.StartScan(context.Background(), validConfig())
	require.NoError(t, err)
	svc.Wait()

	got, err := svc.GetStatus("tenant-1", "scan-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
}

func TestServiceDeleteScan(t *testing.T) {
	gate := make(chan struct{})
	svc, _ := newTestService(t, blockingFetcher(gate), 5, 20)

	_, err := svc.StartScan(context.Background(), validConfig())
	require.NoError(t, err)

	assert.True(t, errors.IsConflict(svc.DeleteScan("tenant-1", "scan-1")))

	close(gate)
	svc.Wait()

	require.NoError(t, svc.DeleteScan("tenant-1", "scan-1"))
	_, err = svc.GetStatus("tenant-1", "scan-1")
	assert.True(t, errors.IsNotFound(err))
}
