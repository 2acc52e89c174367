package commands

import (
	"database/sql"

	"github.com/crmforge/hubscan/backoff"
	"github.com/crmforge/hubscan/config"
	"github.com/crmforge/hubscan/db"
	"github.com/crmforge/hubscan/hubspot"
	"github.com/crmforge/hubscan/logger"
	"github.com/crmforge/hubscan/ratelimit"
	"github.com/crmforge/hubscan/scan"
	"github.com/crmforge/hubscan/storage"
)

// runtime bundles everything a scan command needs. Close the database when
// done.
type runtime struct {
	cfg      *config.Config
	database *sql.DB
	service  *scan.Service
	client   *hubspot.Client
	deals    *storage.DealStore
	jobs     *scan.Store
}

func (r *runtime) Close() {
	r.service.Shutdown()
	_ = r.database.Close()
}

// openDatabase opens and migrates the configured database
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	log := logger.Named("db")
	database, err := db.Open(cfg.Database.Path, log)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database, log); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// buildRuntime wires the limiter, the CRM client, the stores and the scan
// service from configuration.
func buildRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return nil, err
	}

	retryPolicy := backoff.Policy{
		MaxAttempts: cfg.Scan.MaxRetries,
		BaseDelay:   cfg.Scan.RetryBaseDelay(),
	}

	limiter := ratelimit.New(cfg.HubSpot.MaxCallsPerWindow, cfg.HubSpot.Window(), cfg.HubSpot.Burst)
	client := hubspot.NewClient(hubspot.ClientConfig{
		BaseURL:     cfg.HubSpot.BaseURL,
		Timeout:     cfg.HubSpot.RequestTimeout(),
		RetryPolicy: retryPolicy,
	}, limiter, logger.Logger)

	deals := storage.NewDealStore(database, logger.Named("storage"))
	jobs := scan.NewStore(database)
	registry := scan.NewRegistry(cfg.Scan.MaxConcurrentPerTenant, cfg.Scan.MaxConcurrentGlobal)
	orchestrator := scan.NewOrchestrator(client, deals, retryPolicy, logger.Named("orchestrator"))
	service := scan.NewService(jobs, registry, orchestrator, cfg.Scan.MaxErrorTrail, logger.Named("scan"))

	return &runtime{
		cfg:      cfg,
		database: database,
		service:  service,
		client:   client,
		deals:    deals,
		jobs:     jobs,
	}, nil
}
