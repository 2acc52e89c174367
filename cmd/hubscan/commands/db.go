package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/crmforge/hubscan/config"
	"github.com/crmforge/hubscan/scan"
)

// DbCmd groups database maintenance operations
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the local hubscan database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		fmt.Println("Database schema is up to date")
		return nil
	},
}

var dbCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete finished scans older than a cutoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		database, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		n, err := scan.NewStore(database).CleanupOldJobs(olderThan)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d finished scan(s) older than %s\n", n, olderThan)
		return nil
	},
}

func init() {
	dbCleanupCmd.Flags().Duration("older-than", 30*24*time.Hour, "Delete terminal scans last updated before now minus this duration")

	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbCleanupCmd)
}
