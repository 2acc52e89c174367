package db

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	d, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestMigrateCreatesSchema(t *testing.T) {
	d := newTestDB(t)

	if err := Migrate(d, nil); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	for _, table := range []string{"schema_migrations", "scan_jobs", "deals", "deal_associations", "pipeline_configs"} {
		var name string
		err := d.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("expected table %s to exist: %v", table, err)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	d := newTestDB(t)

	if err := Migrate(d, nil); err != nil {
		t.Fatalf("first Migrate failed: %v", err)
	}
	if err := Migrate(d, nil); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	var count int
	if err := d.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != 4 {
		t.Errorf("expected 4 applied migrations, got %d", count)
	}
}

func TestScanJobsUniqueTenantScanID(t *testing.T) {
	d := newTestDB(t)
	if err := Migrate(d, nil); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	insert := `INSERT INTO scan_jobs (id, scan_id, tenant_id, status, config, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', '{}', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`

	if _, err := d.Exec(insert, "job-1", "deals-2024", "acme"); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if _, err := d.Exec(insert, "job-2", "deals-2024", "acme"); err == nil {
		t.Error("duplicate (tenant_id, scan_id) should violate the unique constraint")
	}
	// Same scan id under a different tenant is fine
	if _, err := d.Exec(insert, "job-3", "deals-2024", "globex"); err != nil {
		t.Errorf("same scan id for another tenant should be allowed: %v", err)
	}
}
