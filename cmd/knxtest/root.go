package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-knxtest/internal/infrastructure/config"
)

// Default configuration file path
const defaultConfigPath = "configs/knxtest.yaml"

// configEnv names the environment variable that selects the config file.
const configEnv = "KNXTEST_CONFIG"

// errFailures signals that checks ran but some failed. The command has
// already printed the details.
var errFailures = errors.New("failures reported")

// newRootCmd builds a fresh command tree. Tests build their own so flag
// state never leaks between runs.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "knxtest",
		Short:         "KNX device integration test harness",
		Long:          "knxtest runs behaviour checks against simulated KNX devices and converts KNX group values.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "config file (default $"+configEnv+" or "+defaultConfigPath+")")

	root.AddCommand(
		newValueCmd(),
		newRunCmd(),
		newServeCmd(),
		newVersionCmd(),
	)
	return root
}

// configPath resolves the config file: flag, then environment, then default.
func configPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// configRequested reports whether the user pointed at a config file.
func configRequested(cmd *cobra.Command) bool {
	return cmd.Flags().Changed("config") || os.Getenv(configEnv) != ""
}

func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path := configPath(cmd)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "knxtest %s (commit %s, built %s)\n", version, commit, date)
			return err
		},
	}
}
