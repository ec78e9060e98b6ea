package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-knxtest/internal/api"
	"github.com/nerrad567/gray-logic-knxtest/internal/harness"
	"github.com/nerrad567/gray-logic-knxtest/internal/infrastructure/logging"
)

func newServeCmd() *cobra.Command {
	var (
		embedded bool
		publish  bool
		port     int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep the devices running and serve the bus monitor API",
		Long: "serve attaches the simulated devices and exposes them over HTTP: " +
			"device state, group values, value conversion, suite runs and a " +
			"WebSocket telegram stream. Runs until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.API.Port = port
			}

			log := logging.New(cfg.Logging, version)
			defer func() {
				if closeErr := log.Close(); closeErr != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "closing log: %v\n", closeErr)
				}
			}()
			log.Info("starting knxtest monitor",
				"version", version,
				"commit", commit,
				"build_date", date,
				"config", path,
			)

			ctx := cmd.Context()
			env, err := setupEnvironment(ctx, cfg, log, envOptions{embeddedBroker: embedded, publishReports: publish})
			if err != nil {
				return err
			}
			defer env.Close()

			deps := api.Deps{
				Config:   cfg.API,
				WS:       cfg.WebSocket,
				Logger:   log.With("component", "api"),
				Registry: env.registry,
				Bus:      env.bus,
				TypeMap:  cfg.KNXTypeMap(),
				Runner: func(ctx context.Context, cases []string) (*harness.Report, error) {
					return env.runSuite(ctx, cases, publish)
				},
				Version: version,
			}
			if env.client != nil {
				deps.MQTT = env.client
			}
			srv, err := api.New(deps)
			if err != nil {
				return fmt.Errorf("creating API server: %w", err)
			}
			if err := srv.Start(ctx); err != nil {
				return fmt.Errorf("starting API server: %w", err)
			}
			defer func() {
				if closeErr := srv.Close(); closeErr != nil {
					log.Error("error closing API server", "error", closeErr)
				}
			}()
			log.Info("monitor ready", "address", srv.Addr())

			<-ctx.Done()
			log.Info("shutdown signal received")
			return nil
		},
	}

	cmd.Flags().BoolVar(&embedded, "embedded-broker", false, "start an in-process MQTT broker (mqtt bus only)")
	cmd.Flags().BoolVar(&publish, "publish", false, "publish run reports over MQTT (mqtt bus only)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override api.port")
	return cmd
}
