// Package telemetry ships per-tick drivetrain samples to InfluxDB, falling back
// to a gzip line-protocol file when the server cannot be reached.
package telemetry

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
)

const Measurement = "drivetrain"

type Config struct {
	URL        string
	Token      string
	Org        string
	Bucket     string
	BackupPath string
}

// Sample is a snapshot of the drivetrain after a solver step.
type Sample struct {
	Time            time.Time
	SimTime         float64
	Gear            int
	Variable        bool
	Throttle        float64
	EngineRPM       float64
	DrivetrainSpeed float64 // rad/s
	VehicleSpeed    float64 // m/s
	ClutchPressure  float64
	ClutchTorque    float64
	MinTorque       float64
	MaxTorque       float64
	EffectiveRatio  float64
	DiskPosition    float64
}

// NewPoint converts a sample to an InfluxDB point.
func NewPoint(s Sample) *influxdb2_write.Point {
	mode := "discrete"
	if s.Variable {
		mode = "variable"
	}
	return influxdb2_write.NewPoint(
		Measurement,
		map[string]string{
			"gear": strconv.Itoa(s.Gear),
			"mode": mode,
		},
		map[string]interface{}{
			"sim_time":         s.SimTime,
			"throttle":         s.Throttle,
			"engine_rpm":       s.EngineRPM,
			"drivetrain_speed": s.DrivetrainSpeed,
			"vehicle_speed":    s.VehicleSpeed,
			"clutch_pressure":  s.ClutchPressure,
			"clutch_torque":    s.ClutchTorque,
			"min_torque":       s.MinTorque,
			"max_torque":       s.MaxTorque,
			"effective_ratio":  s.EffectiveRatio,
			"disk_position":    s.DiskPosition,
		},
		s.Time,
	)
}

// Manager handles the InfluxDB connection and the backup writer.
type Manager struct {
	Client       influxdb2.Client
	Writer       influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	Logger       zerolog.Logger

	cfg        Config
	backupFile *os.File
}

func NewManager(cfg Config, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		Logger: log,
	}
}

// Connect pings the server and opens a write API, or the backup file if the
// server is unreachable.
func (m *Manager) Connect(ctx context.Context) error {
	m.Client = influxdb2.NewClientWithOptions(
		m.cfg.URL,
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000).
			SetHTTPRequestTimeout(5),
	)

	running, err := m.Client.Ping(ctx)
	if err != nil || !running {
		m.IsValid = false
		if m.cfg.BackupPath == "" {
			return fmt.Errorf("influxDB unreachable and no backup path configured: %v", err)
		}
		m.Logger.Warn().Err(err).Str("backupPath", m.cfg.BackupPath).
			Msg("InfluxDB unreachable, writing telemetry to backup file")

		file, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("error creating backup file: %v", err)
		}
		m.backupFile = file
		m.BackupWriter = gzip.NewWriter(file)
		return nil
	}

	m.IsValid = true
	m.Writer = m.Client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.Logger.Error().Err(writeErr).Str("bucket", m.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}(m.Writer.Errors())

	m.Logger.Info().Str("url", m.cfg.URL).Str("bucket", m.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

// Record writes a sample to InfluxDB or the backup file.
func (m *Manager) Record(ctx context.Context, s Sample) error {
	point := NewPoint(s)
	if m.IsValid {
		m.Writer.WritePoint(point)
		return nil
	}

	if m.BackupWriter == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}
	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to telemetry backup file: %w", err)
	}
	return nil
}

// Close flushes pending points and releases the client and backup file.
func (m *Manager) Close() error {
	if m.Writer != nil {
		m.Writer.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}
	if m.BackupWriter != nil {
		if err := m.BackupWriter.Close(); err != nil {
			return err
		}
		return m.backupFile.Close()
	}
	return nil
}
