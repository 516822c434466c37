// Package cmd contains the command line applications for the project.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/yeisme/storyvault/pkg/configs"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:          "storyvault",
		Short:        "Patient story intake, enrichment and search service",
		Version:      configs.AppVersion,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "config file or directory")

	registerServeCommands()
	registerReindexCommands()
	registerConfigsCommands()
	registerBackendCommands()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
