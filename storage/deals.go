// Package storage persists extracted CRM data: deal records with their
// associations, and per-tenant pipeline reference data.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/crmforge/hubscan/errors"
	"github.com/crmforge/hubscan/hubspot"
)

// DealStore writes and reads extracted deals. Page writes are transactional:
// a page either lands completely or not at all.
type DealStore struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// NewDealStore creates a deal store backed by the given database
func NewDealStore(db *sql.DB, logger *zap.SugaredLogger) *DealStore {
	return &DealStore{db: db, logger: logger}
}

const upsertDealQuery = `
	INSERT INTO deals (
		tenant_id, external_id, scan_id,
		deal_name, amount, deal_stage, pipeline,
		close_date, create_date, last_modified,
		extra_properties, raw_payload,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (tenant_id, external_id, scan_id) DO UPDATE SET
		deal_name        = excluded.deal_name,
		amount           = excluded.amount,
		deal_stage       = excluded.deal_stage,
		pipeline         = excluded.pipeline,
		close_date       = excluded.close_date,
		create_date      = excluded.create_date,
		last_modified    = excluded.last_modified,
		extra_properties = excluded.extra_properties,
		raw_payload      = excluded.raw_payload,
		updated_at       = excluded.updated_at`

const upsertAssociationQuery = `
	INSERT INTO deal_associations (
		tenant_id, scan_id, deal_external_id,
		associated_id, relation_type, relation_category, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (tenant_id, scan_id, deal_external_id, associated_id, relation_type)
	DO UPDATE SET relation_category = excluded.relation_category`

// UpsertDeals writes one page of deals in a single transaction, keyed by
// (tenant, external id, scan id). Re-persisting the same page is idempotent.
func (s *DealStore) UpsertDeals(ctx context.Context, tenantID, scanID string, deals []hubspot.DealRecord) error {
	if len(deals) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrPersistence, err.Error())
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	for _, deal := range deals {
		extra, err := marshalExtra(deal.Extra)
		if err != nil {
			return errors.Wrapf(errors.ErrPersistence,
				"failed to encode extra properties for deal %s: %v", deal.ExternalID, err)
		}

		_, err = tx.ExecContext(ctx, upsertDealQuery,
			tenantID, deal.ExternalID, scanID,
			deal.Name, deal.Amount, deal.Stage, deal.Pipeline,
			nullableTime(deal.CloseDate), nullableTime(deal.CreateDate), nullableTime(deal.LastModified),
			extra, string(deal.Raw),
			now, now,
		)
		if err != nil {
			return errors.Wrapf(errors.ErrPersistence,
				"failed to upsert deal %s: %v", deal.ExternalID, err)
		}

		for _, assoc := range deal.Associations {
			_, err = tx.ExecContext(ctx, upsertAssociationQuery,
				tenantID, scanID, deal.ExternalID,
				assoc.AssociatedID, assoc.Type, assoc.Category, now,
			)
			if err != nil {
				return errors.Wrapf(errors.ErrPersistence,
					"failed to upsert association %s->%s: %v", deal.ExternalID, assoc.AssociatedID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrPersistence, err.Error())
	}
	return nil
}

// CountDeals returns the number of deals persisted for one scan
func (s *DealStore) CountDeals(ctx context.Context, tenantID, scanID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM deals WHERE tenant_id = ? AND scan_id = ?",
		tenantID, scanID).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count deals")
	}
	return count, nil
}

// DeleteScanData removes every deal and association a scan produced
func (s *DealStore) DeleteScanData(ctx context.Context, tenantID, scanID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(errors.ErrPersistence, err.Error())
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM deal_associations WHERE tenant_id = ? AND scan_id = ?", tenantID, scanID); err != nil {
		return errors.Wrap(errors.ErrPersistence, err.Error())
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM deals WHERE tenant_id = ? AND scan_id = ?", tenantID, scanID); err != nil {
		return errors.Wrap(errors.ErrPersistence, err.Error())
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrPersistence, err.Error())
	}
	return nil
}

func marshalExtra(extra map[string]string) (sql.NullString, error) {
	if len(extra) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
