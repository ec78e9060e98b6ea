package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-knxtest/internal/harness"
	"github.com/nerrad567/gray-logic-knxtest/internal/infrastructure/logging"
)

// Report output formats.
const (
	outputText = "text"
	outputJSON = "json"
)

func newRunCmd() *cobra.Command {
	var (
		cases    []string
		output   string
		embedded bool
		publish  bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the device behaviour cases",
		Long: "run loads the configuration, attaches the simulated devices to the bus and " +
			"runs every device case. The exit status is 1 when any case fails.",
		Example: "  knxtest run --config configs/knxtest.yaml\n" +
			"  knxtest run --case 'shutter/*/*' --output json\n" +
			"  KNXTEST_BUS_TYPE=mqtt knxtest run --embedded-broker --publish",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if output != outputText && output != outputJSON {
				return fmt.Errorf("unknown output format %q (use text or json)", output)
			}

			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			log := logging.New(cfg.Logging, version)
			defer func() {
				if closeErr := log.Close(); closeErr != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "closing log: %v\n", closeErr)
				}
			}()
			log.Info("configuration loaded", "path", path, "bus", cfg.Bus.Type, "devices", len(cfg.Devices))

			ctx := cmd.Context()
			env, err := setupEnvironment(ctx, cfg, log, envOptions{embeddedBroker: embedded, publishReports: publish})
			if err != nil {
				return err
			}
			defer env.Close()

			report, runErr := env.runSuite(ctx, cases, publish)
			if err := writeReport(cmd, report, output); err != nil {
				return err
			}
			if runErr != nil {
				return fmt.Errorf("run interrupted: %w", runErr)
			}
			if !report.OK() {
				return errFailures
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&cases, "case", nil, "run only cases matching these names or patterns (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "report format: text or json")
	cmd.Flags().BoolVar(&embedded, "embedded-broker", false, "start an in-process MQTT broker (mqtt bus only)")
	cmd.Flags().BoolVar(&publish, "publish", false, "publish the JSON report to knxtest/report/<run id> (mqtt bus only)")
	return cmd
}

func writeReport(cmd *cobra.Command, report *harness.Report, output string) error {
	if output == outputJSON {
		return report.WriteJSON(cmd.OutOrStdout())
	}
	return report.WriteText(cmd.OutOrStdout())
}
