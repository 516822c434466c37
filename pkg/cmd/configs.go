package cmd

import (
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/yeisme/storyvault/pkg/configs"
)

var (
	dumpViper bool

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "inspect the effective configuration",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return configs.InitConfig(configPath)
		},
	}

	configPathCmd = &cobra.Command{
		Use:   "path",
		Short: "print the config file in use",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			used := configs.GetViper().ConfigFileUsed()
			if used == "" {
				used = "(none: defaults and " + configs.EnvPrefix + "_* environment only)"
			}

			fmt.Fprintln(cmd.OutOrStdout(), used)
		},
	}

	configDebugCmd = &cobra.Command{
		Use:   "debug",
		Short: "print the effective config as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dumpViper {
				configs.GetViper().DebugTo(cmd.ErrOrStderr())
			}

			b, err := sonic.ConfigStd.MarshalIndent(configs.GetConfig(), "", "  ")
			if err != nil {
				return fmt.Errorf("encode config: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(b))

			return nil
		},
	}

	configValidateCmd = &cobra.Command{
		Use:   "validate",
		Short: "check the effective config against its rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := configs.GetConfig().Validate(); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), "ok")

			return nil
		},
	}
)

func registerConfigsCommands() {
	configDebugCmd.Flags().BoolVar(&dumpViper, "viper", false, "also dump viper internals to stderr")

	configCmd.AddCommand(configPathCmd, configDebugCmd, configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
