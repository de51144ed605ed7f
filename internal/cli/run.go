package cli

import (
	"github.com/spf13/cobra"

	"oracleguard/internal/app"
	"oracleguard/internal/version"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the fraud detection pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Run(cmd.Context(), cfgFile, version.Version)
	},
}
