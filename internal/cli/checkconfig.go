package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"oracleguard/internal/config"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the configuration file and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.ResolvePath(cfgFile))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "config ok: redis=%s api=%s kafka=%v scorer=%v archive=%v\n",
			cfg.Bus.RedisAddr, cfg.API.Addr, cfg.Ingest.Kafka.Enabled, cfg.Scorer.Enabled, cfg.Archive.Enabled)
		return nil
	},
}
