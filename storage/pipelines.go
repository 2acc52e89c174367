package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/crmforge/hubscan/errors"
	"github.com/crmforge/hubscan/hubspot"
)

// ReplacePipelines swaps a tenant's pipeline reference data for the freshly
// fetched set in one transaction.
func (s *DealStore) ReplacePipelines(ctx context.Context, tenantID string, pipelines []hubspot.Pipeline) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrPersistence, err.Error())
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM pipeline_configs WHERE tenant_id = ?", tenantID); err != nil {
		return errors.Wrap(errors.ErrPersistence, err.Error())
	}

	now := time.Now().UTC()
	for _, p := range pipelines {
		stages, err := json.Marshal(p.Stages)
		if err != nil {
			return errors.Wrapf(errors.ErrPersistence,
				"failed to encode stages for pipeline %s: %v", p.ID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO pipeline_configs (tenant_id, pipeline_id, label, display_order, stages, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			tenantID, p.ID, p.Label, p.DisplayOrder, string(stages), now,
		)
		if err != nil {
			return errors.Wrapf(errors.ErrPersistence,
				"failed to insert pipeline %s: %v", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrPersistence, err.Error())
	}
	return nil
}

// GetPipelines returns a tenant's stored pipelines ordered for display
func (s *DealStore) GetPipelines(ctx context.Context, tenantID string) ([]hubspot.Pipeline, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pipeline_id, label, display_order, stages
		 FROM pipeline_configs WHERE tenant_id = ? ORDER BY display_order, pipeline_id`,
		tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query pipelines")
	}
	defer rows.Close()

	var pipelines []hubspot.Pipeline
	for rows.Next() {
		var p hubspot.Pipeline
		var stagesJSON string
		if err := rows.Scan(&p.ID, &p.Label, &p.DisplayOrder, &stagesJSON); err != nil {
			return nil, errors.Wrap(err, "failed to scan pipeline row")
		}
		if err := json.Unmarshal([]byte(stagesJSON), &p.Stages); err != nil {
			return nil, errors.Wrapf(err, "failed to decode stages for pipeline %s", p.ID)
		}
		pipelines = append(pipelines, p)
	}
	return pipelines, rows.Err()
}
