package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crmforge/hubscan/cmd/hubscan/commands"
	"github.com/crmforge/hubscan/config"
	"github.com/crmforge/hubscan/logger"
)

var rootCmd = &cobra.Command{
	Use:   "hubscan",
	Short: "hubscan - HubSpot deals extraction engine",
	Long: `hubscan - tenant-aware HubSpot CRM deals extraction.

hubscan pulls deal records out of the HubSpot CRM v3 API page by page,
persists them locally with full raw payloads, and tracks every run as a
durable scan job with progress, a bounded error trail, and cooperative
cancellation.

Available commands:
  scan   - Start, inspect and cancel extraction scans
  db     - Manage the local database
  version - Show version information

Examples:
  hubscan scan start --tenant acme --scan-id nightly --token $HUBSPOT_ACCESS_TOKEN
  hubscan scan status --tenant acme --scan-id nightly
  hubscan scan ls --tenant acme
  hubscan db cleanup --older-than 720h`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := logger.Initialize(cfg.Server.LogJSON); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commands.ScanCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
