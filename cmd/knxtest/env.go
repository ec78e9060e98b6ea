package main

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-knxtest/internal/bus"
	"github.com/nerrad567/gray-logic-knxtest/internal/device"
	"github.com/nerrad567/gray-logic-knxtest/internal/harness"
	"github.com/nerrad567/gray-logic-knxtest/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-knxtest/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-knxtest/internal/infrastructure/mqtt"
)

// environment is a running bus with the configured devices attached.
type environment struct {
	cfg      *config.Config
	log      *logging.Logger
	bus      bus.Bus
	client   *mqtt.Client // nil on the memory bus
	registry *device.Registry
	harness  *harness.Harness

	closers []func() // run in reverse order by Close
}

type envOptions struct {
	embeddedBroker bool
	publishReports bool
}

// setupEnvironment starts the bus and attaches every configured device.
// On error everything already started is torn down again.
func setupEnvironment(ctx context.Context, cfg *config.Config, log *logging.Logger, opts envOptions) (_ *environment, err error) {
	env := &environment{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			env.Close()
		}
	}()

	switch cfg.Bus.Type {
	case config.BusMQTT:
		if err := env.startMQTTBus(ctx, opts); err != nil {
			return nil, err
		}
	default:
		if opts.embeddedBroker {
			log.Warn("embedded broker ignored on the memory bus")
		}
		mem := bus.NewMemory()
		env.bus = mem
		env.onClose("memory bus", mem.Close)
		log.Info("memory bus ready")
	}

	env.registry = device.NewRegistry()
	env.registry.SetLogger(log.With("component", "device"))
	if err := env.registry.LoadConfig(cfg.Devices); err != nil {
		return nil, fmt.Errorf("loading devices: %w", err)
	}
	if err := env.registry.Start(ctx, env.bus); err != nil {
		return nil, fmt.Errorf("attaching devices: %w", err)
	}
	env.closers = append(env.closers, env.registry.Stop)
	log.Info("devices attached", "count", env.registry.Count())

	env.harness = harness.New(env.bus,
		harness.WithLogger(log.With("component", "harness")),
		harness.WithTimeout(cfg.Harness.Timeout),
		harness.WithTypeMap(cfg.KNXTypeMap()),
	)

	if opts.publishReports && env.client == nil {
		log.Warn("report publishing needs the mqtt bus, skipping")
	}
	return env, nil
}

func (e *environment) startMQTTBus(ctx context.Context, opts envOptions) error {
	cfg, log := e.cfg, e.log

	if opts.embeddedBroker || cfg.MQTT.Embedded.Enabled {
		broker, err := mqtt.StartBroker(cfg.MQTT, cfg.EmbeddedBrokerAddress(), log.With("component", "broker").Logger)
		if err != nil {
			return fmt.Errorf("starting embedded broker: %w", err)
		}
		e.onClose("embedded broker", broker.Close)
		log.Info("embedded broker listening", "address", broker.Address())
	}

	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.With("component", "mqtt"))
	e.client = client
	e.onClose("mqtt client", client.Close)
	if err := client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("checking MQTT connection: %w", err)
	}
	log.Info("mqtt connected", "broker", cfg.BrokerURL(), "client_id", client.ClientID())

	mb := bus.NewMQTT(client, mqtt.NewTopics(cfg.Bus.TopicPrefix), client.QoS(), log.With("component", "bus"))
	if err := mb.Start(); err != nil {
		return fmt.Errorf("starting mqtt bus: %w", err)
	}
	e.bus = mb
	e.onClose("mqtt bus", mb.Close)
	return nil
}

func (e *environment) onClose(what string, fn func() error) {
	e.closers = append(e.closers, func() {
		if err := fn(); err != nil {
			e.log.Error("error closing "+what, "error", err)
		}
	})
}

// Close stops devices and the bus in reverse start order.
func (e *environment) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// runSuite runs the device cases matching patterns, or the configured
// selection when patterns is empty.
func (e *environment) runSuite(ctx context.Context, patterns []string, publish bool) (*harness.Report, error) {
	if len(patterns) == 0 {
		patterns = e.cfg.Harness.Cases
	}
	suite := harness.NewSuite(e.cfg.Harness.Name, e.harness,
		harness.WithFilter(patterns...),
		harness.WithStopOnFailure(e.cfg.Harness.StopOnFailure),
	)
	suite.Add(harness.DeviceCases(e.registry.List())...)

	report := suite.Run(ctx)
	e.log.Info("suite finished",
		"run_id", report.RunID,
		"passed", report.Passed,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"duration", report.Duration,
	)

	if publish && e.client != nil {
		if err := report.Publish(e.client, e.client.QoS()); err != nil {
			e.log.Warn("publishing report failed", "error", err)
		} else {
			e.log.Info("report published", "topic", mqtt.Topics{}.Report(report.RunID))
		}
	}
	return report, ctx.Err()
}
