package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crmforge/hubscan/internal/version"
)

// VersionCmd prints build version information
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hubscan %s\n", version.VersionTag)
	},
}
