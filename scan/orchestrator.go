package scan

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/crmforge/hubscan/backoff"
	"github.com/crmforge/hubscan/errors"
	"github.com/crmforge/hubscan/hubspot"
)

// Fetcher is the read side of the CRM API used by a scan run
type Fetcher interface {
	ValidateCredentials(ctx context.Context, creds hubspot.Credentials) error
	FetchPipelines(ctx context.Context, creds hubspot.Credentials) ([]hubspot.Pipeline, error)
	FetchDealsPage(ctx context.Context, creds hubspot.Credentials, cursor string, pageSize int, properties, associations []string) (*hubspot.DealsPage, error)
}

// Persister writes extracted data. UpsertDeals must persist a page
// atomically: either the whole page lands or none of it does.
type Persister interface {
	UpsertDeals(ctx context.Context, tenantID, scanID string, deals []hubspot.DealRecord) error
	ReplacePipelines(ctx context.Context, tenantID string, pipelines []hubspot.Pipeline) error
}

// Orchestrator drives one scan from running to a terminal status
type Orchestrator struct {
	fetcher      Fetcher
	persister    Persister
	persistRetry backoff.Policy
	logger       *zap.SugaredLogger
}

// NewOrchestrator wires a fetcher and persister together. persistRetry
// governs how hard a failed page write is retried before the scan fails.
func NewOrchestrator(fetcher Fetcher, persister Persister, persistRetry backoff.Policy, logger *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{
		fetcher:      fetcher,
		persister:    persister,
		persistRetry: persistRetry,
		logger:       logger,
	}
}

// Run executes the scan held by the machine to completion. Any error that
// escapes the page loop fails the scan with a persisted reason; Run itself
// returns the terminal error for the caller's logging, never a panic.
func (o *Orchestrator) Run(ctx context.Context, m *Machine) (err error) {
	job := m.Snapshot()
	log := o.logger.With("tenant_id", job.TenantID, "scan_id", job.ScanID)

	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("scan panicked: %v", r)
			log.Errorw("scan panicked", "panic", r)
			if failErr := m.Fail(err.Error()); failErr != nil {
				log.Errorw("failed to persist panic failure", "error", failErr)
			}
		}
	}()

	if err := m.Start(); err != nil {
		return err
	}
	log.Infow("scan started", "batch_size", job.Config.BatchSize)

	creds := hubspot.Credentials{Tenant: job.TenantID, AccessToken: job.Config.AccessToken}

	// Authorization failures are fatal immediately, before any page is
	// fetched: a revoked token never burns retries.
	if err := o.fetcher.ValidateCredentials(ctx, creds); err != nil {
		log.Warnw("credential validation failed", "error", err)
		return o.fail(m, log, err)
	}

	pipelines, err := o.fetcher.FetchPipelines(ctx, creds)
	if err != nil {
		log.Warnw("pipeline fetch failed", "error", err)
		return o.fail(m, log, err)
	}
	if err := o.persister.ReplacePipelines(ctx, job.TenantID, pipelines); err != nil {
		log.Errorw("pipeline persist failed", "error", err)
		return o.fail(m, log, errors.Wrap(errors.ErrPersistence, err.Error()))
	}

	cursor := ""
	pages := 0
	for {
		if done, err := o.checkCancelled(ctx, m, log); done {
			return err
		}

		page, err := o.fetcher.FetchDealsPage(ctx, creds, cursor, job.Config.BatchSize,
			job.Config.Properties, job.Config.Associations)
		if err != nil {
			log.Warnw("page fetch failed", "cursor", cursor, "error", err)
			return o.fail(m, log, err)
		}

		// A cancel that arrived while the page was in flight wins: the
		// fetched page is discarded, not persisted.
		if done, err := o.checkCancelled(ctx, m, log); done {
			return err
		}

		if err := o.persistPage(ctx, m, job, page.Deals); err != nil {
			log.Errorw("page persist failed", "cursor", cursor, "error", err)
			return o.fail(m, log, err)
		}

		for _, de := range page.DecodeErrors {
			if err := m.RecordItemError(de.ItemID, de.Message); err != nil {
				return o.fail(m, log, err)
			}
		}
		if err := m.RecordProgress(len(page.Deals), len(page.DecodeErrors)); err != nil {
			return o.fail(m, log, err)
		}

		pages++
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor

		if delay := job.Config.PageDelay(); delay > 0 {
			select {
			case <-ctx.Done():
				return o.fail(m, log, ctx.Err())
			case <-time.After(delay):
			}
		}
	}

	if err := m.Complete(); err != nil {
		return err
	}
	final := m.Snapshot()
	log.Infow("scan completed",
		"pages", pages,
		"processed", final.Progress.Processed,
		"failed", final.Progress.Failed)
	return nil
}

// checkCancelled handles both cooperative cancellation and context
// cancellation. Returns done=true when the loop must stop.
func (o *Orchestrator) checkCancelled(ctx context.Context, m *Machine, log *zap.SugaredLogger) (bool, error) {
	if m.CancelRequested() {
		log.Infow("scan cancelled by request")
		return true, m.Cancel("cancelled by request")
	}
	if err := ctx.Err(); err != nil {
		log.Infow("scan context cancelled", "error", err)
		return true, m.Cancel(err.Error())
	}
	return false, nil
}

// persistPage writes one page with bounded retries. Exhaustion surfaces as
// a persistence error that fails the scan.
func (o *Orchestrator) persistPage(ctx context.Context, m *Machine, job *Job, deals []hubspot.DealRecord) error {
	if len(deals) == 0 {
		return nil
	}

	retry := backoff.NewState(o.persistRetry)
	for {
		err := o.persister.UpsertDeals(ctx, job.TenantID, job.ScanID, deals)
		if err == nil {
			return nil
		}
		if !retry.Failure() {
			return errors.Wrapf(errors.ErrPersistence,
				"page persist failed after %d attempts: %v", retry.Attempts(), err)
		}
		if err := retry.Wait(ctx); err != nil {
			return err
		}
	}
}

// fail records the terminal failure reason, preferring the persisted state.
// The original error is returned for the caller.
func (o *Orchestrator) fail(m *Machine, log *zap.SugaredLogger, cause error) error {
	if err := m.Fail(cause.Error()); err != nil {
		log.Errorw("failed to persist scan failure", "error", err)
	}
	return cause
}
