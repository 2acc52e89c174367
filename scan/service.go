package scan

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crmforge/hubscan/errors"
)

// Service is the job control surface: it admits scans against the
// concurrency ceilings, runs them in the background, and answers status and
// cancellation requests.
type Service struct {
	store        *Store
	registry     *Registry
	orchestrator *Orchestrator
	maxTrail     int
	logger       *zap.SugaredLogger

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService builds the control surface. maxTrail bounds each job's error
// trail.
func NewService(store *Store, registry *Registry, orchestrator *Orchestrator, maxTrail int, logger *zap.SugaredLogger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		store:        store,
		registry:     registry,
		orchestrator: orchestrator,
		maxTrail:     maxTrail,
		logger:       logger,
		runCtx:       ctx,
		cancel:       cancel,
	}
}

// StartScan validates the config, admits the scan, persists the pending job
// and launches the run in the background. A scan id that is currently
// active returns Conflict; a terminal previous run with the same scan id is
// replaced by the new one.
func (s *Service) StartScan(ctx context.Context, cfg Config) (*Job, error) {
	job, err := NewJob(cfg)
	if err != nil {
		return nil, err
	}

	machine := NewMachine(job, s.store, s.maxTrail)
	if err := s.registry.Add(cfg.TenantID, cfg.ScanID, machine); err != nil {
		return nil, err
	}

	if err := s.persistNewJob(job); err != nil {
		s.registry.Remove(cfg.TenantID, cfg.ScanID)
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.registry.Remove(cfg.TenantID, cfg.ScanID)
		if err := s.orchestrator.Run(s.runCtx, machine); err != nil {
			s.logger.Warnw("scan finished with error",
				"tenant_id", cfg.TenantID, "scan_id", cfg.ScanID, "error", err)
		}
	}()

	return job.clone(), nil
}

// persistNewJob inserts the pending row, replacing a previous terminal run
// of the same scan id. A previous run that appears active but holds no
// registry slot is a leftover from an interrupted process and is replaced
// too.
func (s *Service) persistNewJob(job *Job) error {
	existing, err := s.store.GetJob(job.TenantID, job.ScanID)
	switch {
	case errors.IsNotFound(err):
		return s.store.CreateJob(job)
	case err != nil:
		return err
	}

	if !existing.Status.Terminal() {
		s.logger.Warnw("replacing stale non-terminal scan row",
			"tenant_id", job.TenantID, "scan_id", job.ScanID, "stale_status", existing.Status)
	}
	return s.store.UpdateJob(job)
}

// GetStatus returns the current job state, preferring the live in-memory
// snapshot for active scans.
func (s *Service) GetStatus(tenantID, scanID string) (*Job, error) {
	if m := s.registry.Get(tenantID, scanID); m != nil {
		return m.Snapshot(), nil
	}
	return s.store.GetJob(tenantID, scanID)
}

// ListScans returns recent jobs for a tenant, optionally filtered by status
func (s *Service) ListScans(tenantID string, status *Status, limit int) ([]*Job, error) {
	return s.store.ListJobs(tenantID, status, limit)
}

// Cancel requests cancellation of a scan. Active scans are cancelled
// cooperatively; a pending scan is cancelled immediately. Cancelling an
// already-cancelled scan is a no-op; cancelling a completed or failed scan
// returns Conflict.
func (s *Service) Cancel(tenantID, scanID string) error {
	if m := s.registry.Get(tenantID, scanID); m != nil {
		return m.RequestCancel("cancelled by operator")
	}

	// Not active: operate on the persisted row directly. A row still marked
	// running here has no goroutine left to observe a cooperative flag (the
	// process that ran it is gone), so it is cancelled outright.
	job, err := s.store.GetJob(tenantID, scanID)
	if err != nil {
		return err
	}
	m := NewMachine(job, s.store, s.maxTrail)
	if job.Status == StatusRunning {
		s.logger.Warnw("cancelling orphaned running scan",
			"tenant_id", tenantID, "scan_id", scanID)
		return m.Cancel("cancelled by operator")
	}
	return m.RequestCancel("cancelled by operator")
}

// DeleteScan removes a terminal job row and is refused for active scans
func (s *Service) DeleteScan(tenantID, scanID string) error {
	if s.registry.Get(tenantID, scanID) != nil {
		return errors.NewConflictError("scan %s is active and cannot be deleted", scanID)
	}
	job, err := s.store.GetJob(tenantID, scanID)
	if err != nil {
		return err
	}
	if !job.Status.Terminal() {
		return errors.NewConflictError("scan %s is %s and cannot be deleted", scanID, job.Status)
	}
	return s.store.DeleteJob(tenantID, scanID)
}

// Cleanup deletes terminal jobs older than the cutoff and returns the count
func (s *Service) Cleanup(olderThan time.Duration) (int, error) {
	return s.store.CleanupOldJobs(olderThan)
}

// Shutdown cancels every running scan and waits for their goroutines to
// persist a terminal state.
func (s *Service) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until all launched scans have finished. Intended for tests
// and one-shot CLI runs.
func (s *Service) Wait() {
	s.wg.Wait()
}
