package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crmforge/hubscan/hubspot"
	"github.com/crmforge/hubscan/scan"
)

// ScanCmd groups the extraction scan operations
var ScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Start, inspect and cancel extraction scans",
	Long: `Manage HubSpot deal extraction scans.

A scan pulls every deal for one tenant page by page and persists them
locally. Each scan is identified by a caller-chosen scan id; re-running a
finished scan id starts a fresh run, while a scan id that is still active
is rejected.

Examples:
  hubscan scan start --tenant acme --scan-id nightly --token $HUBSPOT_ACCESS_TOKEN
  hubscan scan status --tenant acme --scan-id nightly
  hubscan scan cancel --tenant acme --scan-id nightly
  hubscan scan ls --tenant acme --status completed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var scanStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start an extraction scan and run it to completion",
	Long: `Start a scan in the foreground.

The command runs until the scan reaches a terminal status. Ctrl+C requests
cooperative cancellation: the page in flight is discarded and everything
already persisted stays.

The access token is read from --token, falling back to the
HUBSPOT_ACCESS_TOKEN environment variable. It is never written to disk.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, _ := cmd.Flags().GetString("tenant")
		scanID, _ := cmd.Flags().GetString("scan-id")
		token, _ := cmd.Flags().GetString("token")
		properties, _ := cmd.Flags().GetString("properties")
		associations, _ := cmd.Flags().GetString("associations")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		pageDelay, _ := cmd.Flags().GetInt("page-delay-ms")

		if token == "" {
			token = os.Getenv("HUBSPOT_ACCESS_TOKEN")
		}

		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		if batchSize == 0 {
			batchSize = rt.cfg.Scan.BatchSize
		}

		cfg := scan.Config{
			ScanID:       scanID,
			TenantID:     tenant,
			AccessToken:  token,
			Properties:   splitList(properties),
			Associations: splitList(associations),
			BatchSize:    batchSize,
			PageDelayMs:  pageDelay,
		}

		job, err := rt.service.StartScan(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		fmt.Printf("Scan %s started for tenant %s (job %s)\n", job.ScanID, job.TenantID, job.ID)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		done := make(chan struct{})
		go func() {
			rt.service.Wait()
			close(done)
		}()

		select {
		case <-sigCh:
			fmt.Println("Interrupt received, cancelling scan...")
			if err := rt.service.Cancel(tenant, scanID); err != nil {
				return err
			}
			<-done
		case <-done:
		}

		final, err := rt.service.GetStatus(tenant, scanID)
		if err != nil {
			return err
		}
		return printJob(final)
	},
}

var scanStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a scan",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, _ := cmd.Flags().GetString("tenant")
		scanID, _ := cmd.Flags().GetString("scan-id")

		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		job, err := rt.service.GetStatus(tenant, scanID)
		if err != nil {
			return err
		}
		return printJob(job)
	},
}

var scanCancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel a pending or running scan",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, _ := cmd.Flags().GetString("tenant")
		scanID, _ := cmd.Flags().GetString("scan-id")

		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.service.Cancel(tenant, scanID); err != nil {
			return err
		}
		fmt.Printf("Cancellation requested for scan %s\n", scanID)
		return nil
	},
}

var scanLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List scans for a tenant",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, _ := cmd.Flags().GetString("tenant")
		statusFilter, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		var status *scan.Status
		if statusFilter != "" {
			if !scan.IsValidStatus(statusFilter) {
				return fmt.Errorf("unknown status %q", statusFilter)
			}
			s := scan.Status(statusFilter)
			status = &s
		}

		jobs, err := rt.service.ListScans(tenant, status, limit)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No scans found")
			return nil
		}

		for _, job := range jobs {
			fmt.Printf("%-20s %-10s processed=%d failed=%d total=%d updated=%s\n",
				job.ScanID, job.Status,
				job.Progress.Processed, job.Progress.Failed, job.Progress.Total,
				job.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var scanRmCmd = &cobra.Command{
	Use:   "rm",
	Short: "Delete a finished scan",
	Long: `Delete a finished scan job row.

With --data, the deals and associations the scan extracted are removed as
well. Active scans cannot be deleted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, _ := cmd.Flags().GetString("tenant")
		scanID, _ := cmd.Flags().GetString("scan-id")
		withData, _ := cmd.Flags().GetBool("data")

		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.service.DeleteScan(tenant, scanID); err != nil {
			return err
		}
		if withData {
			if err := rt.deals.DeleteScanData(cmd.Context(), tenant, scanID); err != nil {
				return err
			}
		}
		fmt.Printf("Deleted scan %s\n", scanID)
		return nil
	},
}

var scanDealCmd = &cobra.Command{
	Use:   "deal <deal-id>",
	Short: "Fetch a single deal by its CRM object id",
	Long: `Fetch one deal directly from HubSpot, bypassing the scan loop.

Useful for spot-checking a record against what a scan persisted. The token
is read from --token, falling back to the HUBSPOT_ACCESS_TOKEN environment
variable.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, _ := cmd.Flags().GetString("tenant")
		token, _ := cmd.Flags().GetString("token")
		properties, _ := cmd.Flags().GetString("properties")
		associations, _ := cmd.Flags().GetString("associations")
		if token == "" {
			token = os.Getenv("HUBSPOT_ACCESS_TOKEN")
		}

		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		rec, err := rt.client.FetchDeal(cmd.Context(),
			hubspot.Credentials{Tenant: tenant, AccessToken: token},
			args[0], splitList(properties), splitList(associations))
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var scanAccountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show the HubSpot portal behind a token",
	Long: `Fetch portal details (portal id, hub domain, time zone, currency)
for the tenant's token. A handy connection diagnostic before starting a
scan.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, _ := cmd.Flags().GetString("tenant")
		token, _ := cmd.Flags().GetString("token")
		if token == "" {
			token = os.Getenv("HUBSPOT_ACCESS_TOKEN")
		}

		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		info, err := rt.client.FetchAccountInfo(cmd.Context(),
			hubspot.Credentials{Tenant: tenant, AccessToken: token})
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var scanPropertiesCmd = &cobra.Command{
	Use:   "properties",
	Short: "List the deal properties available for a tenant",
	Long: `List every deal property the tenant's HubSpot portal exposes.

Useful for composing the --properties flag of scan start. The token is read
from --token, falling back to the HUBSPOT_ACCESS_TOKEN environment variable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, _ := cmd.Flags().GetString("tenant")
		token, _ := cmd.Flags().GetString("token")
		if token == "" {
			token = os.Getenv("HUBSPOT_ACCESS_TOKEN")
		}

		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()

		names, err := rt.client.FetchDealProperties(cmd.Context(), hubspot.Credentials{
			Tenant:      tenant,
			AccessToken: token,
		})
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

func printJob(job *scan.Job) error {
	out, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func init() {
	for _, c := range []*cobra.Command{scanStartCmd, scanStatusCmd, scanCancelCmd, scanRmCmd} {
		c.Flags().String("tenant", "", "Tenant identifier (required)")
		c.Flags().String("scan-id", "", "Scan identifier (required)")
		_ = c.MarkFlagRequired("tenant")
		_ = c.MarkFlagRequired("scan-id")
	}

	scanStartCmd.Flags().String("token", "", "HubSpot private app access token (default $HUBSPOT_ACCESS_TOKEN)")
	scanStartCmd.Flags().String("properties", "", "Comma-separated deal properties to fetch (default standard set)")
	scanStartCmd.Flags().String("associations", "", "Comma-separated association types to fetch")
	scanStartCmd.Flags().Int("batch-size", 0, "Page size, 1-100 (default from config)")
	scanStartCmd.Flags().Int("page-delay-ms", 0, "Optional delay between pages in milliseconds")

	scanLsCmd.Flags().String("tenant", "", "Tenant identifier (required)")
	_ = scanLsCmd.MarkFlagRequired("tenant")
	scanLsCmd.Flags().String("status", "", "Filter by status (pending, running, completed, failed, cancelled)")
	scanLsCmd.Flags().Int("limit", 20, "Maximum number of scans to list")

	scanRmCmd.Flags().Bool("data", false, "Also delete the deals this scan extracted")

	for _, c := range []*cobra.Command{scanPropertiesCmd, scanDealCmd, scanAccountCmd} {
		c.Flags().String("tenant", "", "Tenant identifier (required)")
		_ = c.MarkFlagRequired("tenant")
		c.Flags().String("token", "", "HubSpot private app access token (default $HUBSPOT_ACCESS_TOKEN)")
	}
	scanDealCmd.Flags().String("properties", "", "Comma-separated deal properties to fetch (default standard set)")
	scanDealCmd.Flags().String("associations", "", "Comma-separated association types to fetch")

	ScanCmd.AddCommand(scanStartCmd)
	ScanCmd.AddCommand(scanStatusCmd)
	ScanCmd.AddCommand(scanCancelCmd)
	ScanCmd.AddCommand(scanLsCmd)
	ScanCmd.AddCommand(scanRmCmd)
	ScanCmd.AddCommand(scanDealCmd)
	ScanCmd.AddCommand(scanAccountCmd)
	ScanCmd.AddCommand(scanPropertiesCmd)
}
