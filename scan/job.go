// Package scan implements the extraction orchestration core: the scan job
// state machine, the active-scan registry, and the orchestrator that drives
// one paginated extraction from the CRM into the store.
package scan

import (
	"time"

	"github.com/google/uuid"

	"github.com/crmforge/hubscan/errors"
)

// Status represents the current state of a scan job
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal returns true if no further transition is permitted from s
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsValidStatus returns true if the status string is a valid Status
func IsValidStatus(s string) bool {
	switch Status(s) {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Progress holds the scan's counters. Total is 0 until discovered; the CRM
// does not report it upfront.
type Progress struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// SuccessRate returns processed / max(total, 1)
func (p Progress) SuccessRate() float64 {
	total := p.Total
	if total < 1 {
		total = 1
	}
	return float64(p.Processed) / float64(total)
}

// ItemError is one entry in the bounded per-item error trail
type ItemError struct {
	ItemID     string    `json:"item_id"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
	RetryCount int       `json:"retry_count,omitempty"`
}

// Config is the immutable snapshot of extraction parameters captured at
// creation time. The bearer token is held in memory only and never
// serialized with the job row.
type Config struct {
	ScanID         string            `json:"scan_id"`
	TenantID       string            `json:"tenant_id"`
	OrganizationID string            `json:"organization_id,omitempty"`
	AccessToken    string            `json:"-"`
	Properties     []string          `json:"properties,omitempty"`
	Associations   []string          `json:"associations,omitempty"`
	Filters        map[string]string `json:"filters,omitempty"`
	StartDate      *time.Time        `json:"start_date,omitempty"`
	EndDate        *time.Time        `json:"end_date,omitempty"`
	BatchSize      int               `json:"batch_size"`
	PageDelayMs    int               `json:"page_delay_ms,omitempty"`
}

// PageDelay returns the optional delay between page iterations
func (c Config) PageDelay() time.Duration {
	return time.Duration(c.PageDelayMs) * time.Millisecond
}

// Validate checks the config before any job is created
func (c Config) Validate() error {
	if c.ScanID == "" {
		return errors.NewInvalidConfigurationError("scan id must not be empty")
	}
	if c.TenantID == "" {
		return errors.NewInvalidConfigurationError("tenant id must not be empty")
	}
	if c.AccessToken == "" {
		return errors.NewInvalidConfigurationError("access token must not be empty")
	}
	if c.BatchSize < 1 || c.BatchSize > 100 {
		return errors.NewInvalidConfigurationError("batch size must be in [1,100], got %d", c.BatchSize)
	}
	if c.StartDate != nil && c.EndDate != nil && c.EndDate.Before(*c.StartDate) {
		return errors.NewInvalidConfigurationError("end date precedes start date")
	}
	return nil
}

// Job represents one extraction run. Only the orchestrator (through the
// Machine) mutates it after creation.
type Job struct {
	ID             string      `json:"id"` // internal job id
	ScanID         string      `json:"scan_id"`
	TenantID       string      `json:"tenant_id"`
	OrganizationID string      `json:"organization_id,omitempty"`
	Status         Status      `json:"status"`
	Progress       Progress    `json:"progress"`
	Config         Config      `json:"config"`
	Error          string      `json:"error,omitempty"`
	ErrorTrail     []ItemError `json:"error_trail,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// NewJob creates a pending job from a validated config
func NewJob(cfg Config) (*Job, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Job{
		ID:             uuid.NewString(),
		ScanID:         cfg.ScanID,
		TenantID:       cfg.TenantID,
		OrganizationID: cfg.OrganizationID,
		Status:         StatusPending,
		Config:         cfg,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// start marks the job as running. Transition validity is enforced by the
// Machine; these mutators only apply the change.
func (j *Job) start() {
	now := time.Now().UTC()
	j.Status = StatusRunning
	j.StartedAt = &now
	j.UpdatedAt = now
}

// complete marks the job as completed. If the total was never discovered,
// it is fixed to the items actually seen so the completed invariant
// processed + failed == total holds.
func (j *Job) complete() {
	now := time.Now().UTC()
	j.Status = StatusCompleted
	if j.Progress.Total == 0 {
		j.Progress.Total = j.Progress.Processed + j.Progress.Failed
	}
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// fail marks the job as failed with a terminal reason
func (j *Job) fail(reason string) {
	now := time.Now().UTC()
	j.Status = StatusFailed
	j.Error = reason
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// cancel marks the job as cancelled with a reason
func (j *Job) cancel(reason string) {
	now := time.Now().UTC()
	j.Status = StatusCancelled
	j.Error = reason
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// recordProgress increments the counters
func (j *Job) recordProgress(processedDelta, failedDelta int) {
	j.Progress.Processed += processedDelta
	j.Progress.Failed += failedDelta
	j.UpdatedAt = time.Now().UTC()
}

// appendItemError appends to the error trail, keeping at most maxTrail
// entries (oldest dropped first).
func (j *Job) appendItemError(e ItemError, maxTrail int) {
	j.ErrorTrail = append(j.ErrorTrail, e)
	if maxTrail > 0 && len(j.ErrorTrail) > maxTrail {
		j.ErrorTrail = j.ErrorTrail[len(j.ErrorTrail)-maxTrail:]
	}
	j.UpdatedAt = time.Now().UTC()
}

// clone returns a deep copy of the job
func (j *Job) clone() *Job {
	cp := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	if j.ErrorTrail != nil {
		cp.ErrorTrail = append([]ItemError(nil), j.ErrorTrail...)
	}
	return &cp
}
