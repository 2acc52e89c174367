package scan

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/crmforge/hubscan/errors"
)

// Store handles persistence of scan jobs
type Store struct {
	db *sql.DB
}

// NewStore creates a new scan job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const jobSelectColumns = `id, scan_id, tenant_id, organization_id, status,
	total_items, processed_items, failed_items,
	config, error, error_trail,
	created_at, started_at, completed_at, updated_at`

// CreateJob inserts a new job row
func (s *Store) CreateJob(job *Job) error {
	configJSON, trailJSON, err := marshalJobJSON(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO scan_jobs (
			id, scan_id, tenant_id, organization_id, status,
			total_items, processed_items, failed_items,
			config, error, error_trail,
			created_at, started_at, completed_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	orgID := sql.NullString{String: job.OrganizationID, Valid: job.OrganizationID != ""}
	errMsg := sql.NullString{String: job.Error, Valid: job.Error != ""}

	_, err = s.db.Exec(query,
		job.ID,
		job.ScanID,
		job.TenantID,
		orgID,
		job.Status,
		job.Progress.Total,
		job.Progress.Processed,
		job.Progress.Failed,
		configJSON,
		errMsg,
		trailJSON,
		job.CreatedAt,
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		job.UpdatedAt,
	)

	if err != nil {
		return errors.Wrap(err, "failed to create scan job")
	}

	return nil
}

// UpdateJob updates an existing job row
func (s *Store) UpdateJob(job *Job) error {
	configJSON, trailJSON, err := marshalJobJSON(job)
	if err != nil {
		return err
	}

	query := `
		UPDATE scan_jobs
		SET id = ?,
		    status = ?,
		    total_items = ?,
		    processed_items = ?,
		    failed_items = ?,
		    config = ?,
		    error = ?,
		    error_trail = ?,
		    created_at = ?,
		    started_at = ?,
		    completed_at = ?,
		    updated_at = ?
		WHERE tenant_id = ? AND scan_id = ?
	`

	errMsg := sql.NullString{String: job.Error, Valid: job.Error != ""}

	result, err := s.db.Exec(query,
		job.ID,
		job.Status,
		job.Progress.Total,
		job.Progress.Processed,
		job.Progress.Failed,
		configJSON,
		errMsg,
		trailJSON,
		job.CreatedAt,
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		job.UpdatedAt,
		job.TenantID,
		job.ScanID,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update scan job")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("scan not found: %s/%s", job.TenantID, job.ScanID)
	}

	return nil
}

// GetJob retrieves a job by its tenant-scoped scan id
func (s *Store) GetJob(tenantID, scanID string) (*Job, error) {
	query := `SELECT ` + jobSelectColumns + ` FROM scan_jobs WHERE tenant_id = ? AND scan_id = ?`

	job, err := scanJobRow(s.db.QueryRow(query, tenantID, scanID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("scan not found: %s/%s", tenantID, scanID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get scan job")
	}
	return job, nil
}

// ListJobs returns a tenant's jobs, optionally filtered by status, newest
// first. A non-positive limit returns all of them.
func (s *Store) ListJobs(tenantID string, status *Status, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = -1 // SQLite: LIMIT -1 means unlimited
	}

	var query string
	var args []interface{}

	base := `SELECT ` + jobSelectColumns + ` FROM scan_jobs WHERE tenant_id = ?`
	if status != nil {
		query = base + ` AND status = ? ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{tenantID, *status, limit}
	} else {
		query = base + ` ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{tenantID, limit}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list scan jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJobRows(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan job row")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating scan jobs")
	}

	return jobs, nil
}

// DeleteJob removes a job row. This is an administrative operation; the
// orchestrator never deletes jobs.
func (s *Store) DeleteJob(tenantID, scanID string) error {
	result, err := s.db.Exec(`DELETE FROM scan_jobs WHERE tenant_id = ? AND scan_id = ?`, tenantID, scanID)
	if err != nil {
		return errors.Wrap(err, "failed to delete scan job")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.NewNotFoundError("scan not found: %s/%s", tenantID, scanID)
	}

	return nil
}

// CleanupOldJobs removes terminal jobs older than the specified duration
func (s *Store) CleanupOldJobs(olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	result, err := s.db.Exec(`
		DELETE FROM scan_jobs
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND updated_at < ?
	`, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old scan jobs")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(rows), nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJobRow(row *sql.Row) (*Job, error) { return scanJob(row) }

func scanJobRows(rows *sql.Rows) (*Job, error) { return scanJob(rows) }

func scanJob(r rowScanner) (*Job, error) {
	var job Job
	var orgID, errMsg, trailJSON sql.NullString
	var configJSON string
	var startedAt, completedAt sql.NullTime

	err := r.Scan(
		&job.ID,
		&job.ScanID,
		&job.TenantID,
		&orgID,
		&job.Status,
		&job.Progress.Total,
		&job.Progress.Processed,
		&job.Progress.Failed,
		&configJSON,
		&errMsg,
		&trailJSON,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if orgID.Valid {
		job.OrganizationID = orgID.String
	}
	if errMsg.Valid {
		job.Error = errMsg.String
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}

	if err := json.Unmarshal([]byte(configJSON), &job.Config); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config for scan %s", job.ScanID)
	}
	if trailJSON.Valid && trailJSON.String != "" {
		if err := json.Unmarshal([]byte(trailJSON.String), &job.ErrorTrail); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal error trail for scan %s", job.ScanID)
		}
	}

	return &job, nil
}

func marshalJobJSON(job *Job) (configJSON string, trailJSON sql.NullString, err error) {
	cfg, err := json.Marshal(job.Config)
	if err != nil {
		return "", sql.NullString{}, errors.Wrap(err, "failed to marshal config")
	}

	if len(job.ErrorTrail) > 0 {
		trail, err := json.Marshal(job.ErrorTrail)
		if err != nil {
			return "", sql.NullString{}, errors.Wrap(err, "failed to marshal error trail")
		}
		trailJSON = sql.NullString{String: string(trail), Valid: true}
	}

	return string(cfg), trailJSON, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
