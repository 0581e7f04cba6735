package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"vehicle-agent/link"
	"vehicle-agent/logging"
	"vehicle-agent/methods"
	"vehicle-agent/mqtt"
	"vehicle-agent/rpc"
	"vehicle-agent/shell"
	"vehicle-agent/telemetry"
	"vehicle-agent/vehicle"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "vehicle-agent: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	config, err := loadConfig(flags)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(config.Logging.Level, config.Logging.File)
	logger.Info("Vehicle agent starting", "device", config.Device.ID, "label", config.Device.Label)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var raw vehicle.RawSender
	if config.Link.DevicePath != "" {
		adapter := link.NewAdapter(config.Link, logging.Component(logger, "link"))
		if err := adapter.Start(); err != nil {
			return fmt.Errorf("failed to start autopilot link: %w", err)
		}
		defer adapter.Stop()
		raw = adapter
	} else {
		logger.Info("Autopilot link disabled, raw messages will be refused")
	}

	sim := vehicle.NewSim(config.Home(), raw, logging.Component(logger, "vehicle"))
	go sim.Run(ctx)

	attributes, err := config.TelemetryAttributes()
	if err != nil {
		return err
	}
	settings, err := telemetry.NewSettings(config.Telemetry.Period, attributes)
	if err != nil {
		return fmt.Errorf("invalid telemetry config: %w", err)
	}

	var runner methods.CommandRunner
	if config.Shell.Enabled {
		runner = shell.NewRunner(config.Shell, logging.Component(logger, "shell"))
	}

	registry, err := methods.New(sim, settings, runner, logging.Component(logger, "methods")).Registry()
	if err != nil {
		return fmt.Errorf("failed to build operation table: %w", err)
	}
	dispatcher := rpc.NewDispatcher(registry, logging.Component(logger, "rpc"))

	client := mqtt.NewClient(config.MQTT, logging.Component(logger, "mqtt"))
	client.Bind(func(payload []byte) []byte {
		return dispatcher.Dispatch(ctx, payload)
	})
	ack, err := client.Attach(config.Device.ID, config.Device.Label)
	if err != nil {
		return fmt.Errorf("failed to attach device: %w", err)
	}
	defer client.Stop()
	logger.Info("Attached", "heartbeat", ack.Heartbeat, "timestamp", ack.Timestamp)

	projector := vehicle.NewProjector(sim)
	scheduler := telemetry.NewScheduler(settings, projector, client, config.Device.ID, logging.Component(logger, "telemetry"))

	logger.Info("Vehicle agent started. Press Ctrl+C to stop.")
	if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Shutting down")
	return nil
}
