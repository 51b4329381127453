package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sctg-development/rust-photoacoustic-sub001/config"
)

func newValidateCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.configPath == "" {
				return fmt.Errorf("--config is required")
			}

			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "configuration is valid: %d nodes, %d connections\n",
				len(cfg.Graph.Nodes), len(cfg.Graph.Connections))
			return nil
		},
	}
}
