package main

import (
	"github.com/spf13/cobra"
)

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "photoacoustic",
		Short:         "Photoacoustic sensor frame processing engine",
		Long:          "Runs a directed graph of signal processing stages over continuous dual-channel photoacoustic sensor frames, with live reconfiguration over HTTP.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to configuration file (YAML)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level override: debug, info, warn, error")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format override: text, json")

	root.AddCommand(newServeCommand(flags))
	root.AddCommand(newValidateCommand(flags))

	return root
}
