package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elevatorguy/engine-sim/internal/config"
	"github.com/elevatorguy/engine-sim/internal/logging"
	"github.com/elevatorguy/engine-sim/internal/sim"
	"github.com/elevatorguy/engine-sim/internal/storage"
	"github.com/elevatorguy/engine-sim/internal/telemetry"
	"github.com/rs/zerolog"
)

func main() {
	configDir := flag.String("config", ".", "directory containing "+config.FileName)
	duration := flag.Duration("duration", 0, "simulated time to run, overrides sim.duration")
	flag.Parse()

	if err := run(*configDir, *duration); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configDir string, duration time.Duration) error {
	if err := config.Load(configDir); err != nil {
		return err
	}

	logCfg := config.GetLogConfig()
	logger, logCloser, err := logging.New(logging.Config{Level: logCfg.Level, File: logCfg.File}, os.Stdout)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	trCfg, err := config.GetTransmissionConfig()
	if err != nil {
		return err
	}
	engCfg, err := config.GetEngineConfig()
	if err != nil {
		return err
	}
	vehCfg := config.GetVehicleConfig()
	simCfg, err := config.GetSimConfig()
	if err != nil {
		return err
	}
	if duration > 0 {
		simCfg.Duration = duration
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps := sim.Dependencies{Logger: logger}

	var recorder *storage.Recorder
	if storageCfg := config.GetStorageConfig(); storageCfg.Enabled {
		recorder, err = storage.Open(storage.Config{
			Type:       storageCfg.Type,
			SQLitePath: storageCfg.SQLitePath,
			Postgres:   storage.PostgresConfig(storageCfg.Postgres),
		}, logger.With().Str("component", "storage").Logger())
		if err != nil {
			return err
		}
		defer recorder.Close()

		if _, err := recorder.BeginRun(trCfg.GearRatios, trCfg.MaxClutchTorque, trCfg.Variable); err != nil {
			return err
		}
		deps.Recorder = recorder
	}

	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		manager := telemetry.NewManager(telemetry.Config{
			URL:        influxCfg.URL,
			Token:      influxCfg.Token,
			Org:        influxCfg.Org,
			Bucket:     influxCfg.Bucket,
			BackupPath: influxCfg.BackupPath,
		}, logger.With().Str("component", "telemetry").Logger())
		if err := manager.Connect(ctx); err != nil {
			logger.Error().Err(err).Msg("Telemetry disabled")
		} else {
			defer func() {
				if err := manager.Close(); err != nil {
					logger.Error().Err(err).Msg("Failed to close telemetry")
				}
			}()
			deps.Sink = manager
		}
	}

	simulator, err := sim.New(sim.Config{
		StepsPerSecond: simCfg.StepsPerSecond,
		Iterations:     simCfg.Iterations,
		SampleEvery:    simCfg.SampleEvery,
		Script:         scriptCommands(simCfg.Script),
	}, trCfg.Parameters(), engCfg.Parameters(), vehCfg.Parameters(), deps)
	if err != nil {
		return err
	}
	if trCfg.Variable {
		simulator.Transmission().UnlockSlidingDisk()
	}

	summary, runErr := simulator.Run(ctx, simCfg.Duration)

	if recorder != nil {
		if err := recorder.EndRun(summary.Ticks, summary.FinalGear); err != nil {
			logger.Error().Err(err).Msg("Failed to close run record")
		}
	}

	logSummary(logger, summary)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func scriptCommands(script []config.ScriptCommand) []sim.Command {
	commands := make([]sim.Command, 0, len(script))
	for _, c := range script {
		commands = append(commands, sim.Command{
			At:       c.At,
			Gear:     c.Gear,
			Clutch:   c.Clutch,
			Throttle: c.Throttle,
			Disk:     c.Disk,
			Variable: c.Variable,
		})
	}
	return commands
}

func logSummary(logger zerolog.Logger, summary sim.Summary) {
	data, err := json.Marshal(summary)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to encode summary")
		return
	}
	logger.Info().RawJSON("summary", data).Msg("Run complete")
}
