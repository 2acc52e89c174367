package scan

import (
	"sync"
	"time"

	"github.com/crmforge/hubscan/errors"
)

// Machine owns the lifecycle of one scan job. Every status transition and
// counter update goes through here under an exclusive lock, and is persisted
// before the in-memory state advances: if the UPDATE fails, the transition
// is treated as never having happened.
type Machine struct {
	mu              sync.Mutex
	job             *Job
	store           *Store
	maxTrail        int
	cancelRequested bool
}

// NewMachine wraps a job with transition enforcement. maxTrail bounds the
// error trail length; <= 0 uses the default of 100.
func NewMachine(job *Job, store *Store, maxTrail int) *Machine {
	if maxTrail <= 0 {
		maxTrail = 100
	}
	return &Machine{job: job, store: store, maxTrail: maxTrail}
}

// Snapshot returns a copy of the current job state
func (m *Machine) Snapshot() *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.job.clone()
}

// Status returns the current status
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.job.Status
}

// Start transitions pending -> running
func (m *Machine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.job.Status != StatusPending {
		return errors.Wrapf(errors.ErrInvalidTransition,
			"cannot start scan %s from status %s", m.job.ScanID, m.job.Status)
	}

	next := m.job.clone()
	next.start()
	return m.persist(next)
}

// RecordProgress atomically increments the counters. Valid only while
// running.
func (m *Machine) RecordProgress(processedDelta, failedDelta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.job.Status != StatusRunning {
		return errors.Wrapf(errors.ErrInvalidTransition,
			"cannot record progress on scan %s in status %s", m.job.ScanID, m.job.Status)
	}

	next := m.job.clone()
	next.recordProgress(processedDelta, failedDelta)
	return m.persist(next)
}

// SetTotal records the discovered total item count. No-op once set.
func (m *Machine) SetTotal(total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.job.Status != StatusRunning {
		return errors.Wrapf(errors.ErrInvalidTransition,
			"cannot set total on scan %s in status %s", m.job.ScanID, m.job.Status)
	}
	if m.job.Progress.Total != 0 || total <= 0 {
		return nil
	}

	next := m.job.clone()
	next.Progress.Total = total
	next.UpdatedAt = time.Now().UTC()
	return m.persist(next)
}

// RecordItemError appends a per-item failure to the bounded error trail.
// It does not change the job status: a single bad record must not abort the
// scan. Valid only while running.
func (m *Machine) RecordItemError(itemID, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.job.Status != StatusRunning {
		return errors.Wrapf(errors.ErrInvalidTransition,
			"cannot record item error on scan %s in status %s", m.job.ScanID, m.job.Status)
	}

	next := m.job.clone()
	next.appendItemError(ItemError{
		ItemID:    itemID,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}, m.maxTrail)
	return m.persist(next)
}

// Complete transitions running -> completed. Idempotent when already
// completed.
func (m *Machine) Complete() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.job.Status == StatusCompleted {
		return nil
	}
	if m.job.Status != StatusRunning {
		return errors.Wrapf(errors.ErrInvalidTransition,
			"cannot complete scan %s from status %s", m.job.ScanID, m.job.Status)
	}

	next := m.job.clone()
	next.complete()
	return m.persist(next)
}

// Fail transitions running -> failed with a terminal reason. Idempotent when
// already failed.
func (m *Machine) Fail(reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.job.Status == StatusFailed {
		return nil
	}
	if m.job.Status.Terminal() {
		return errors.Wrapf(errors.ErrInvalidTransition,
			"cannot fail scan %s from status %s", m.job.ScanID, m.job.Status)
	}

	next := m.job.clone()
	next.fail(reason)
	return m.persist(next)
}

// Cancel transitions pending/running -> cancelled. Idempotent when already
// cancelled.
func (m *Machine) Cancel(reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.job.Status == StatusCancelled {
		return nil
	}
	if m.job.Status.Terminal() {
		return errors.Wrapf(errors.ErrInvalidTransition,
			"cannot cancel scan %s from status %s", m.job.ScanID, m.job.Status)
	}

	next := m.job.clone()
	next.cancel(reason)
	return m.persist(next)
}

// RequestCancel flags the scan for cooperative cancellation. A pending scan
// is cancelled immediately; a running scan is cancelled by the orchestrator
// loop at its next check. Idempotent while active and when already
// cancelled; Conflict against completed/failed.
func (m *Machine) RequestCancel(reason string) error {
	m.mu.Lock()

	switch {
	case m.job.Status == StatusCancelled:
		m.mu.Unlock()
		return nil
	case m.job.Status.Terminal():
		status := m.job.Status
		scanID := m.job.ScanID
		m.mu.Unlock()
		return errors.NewConflictError("scan %s is already %s", scanID, status)
	case m.job.Status == StatusPending:
		next := m.job.clone()
		next.cancel(reason)
		err := m.persist(next)
		m.mu.Unlock()
		return err
	default:
		m.cancelRequested = true
		m.mu.Unlock()
		return nil
	}
}

// CancelRequested reports whether cooperative cancellation was requested
func (m *Machine) CancelRequested() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelRequested
}

// persist writes the candidate state and commits it in memory only on
// success. Must be called with the lock held.
func (m *Machine) persist(next *Job) error {
	if err := m.store.UpdateJob(next); err != nil {
		return errors.Wrap(err, "failed to persist scan transition")
	}
	m.job = next
	return nil
}
