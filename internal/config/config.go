package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/elevatorguy/engine-sim/engine"
	"github.com/elevatorguy/engine-sim/internal/units"
	"github.com/elevatorguy/engine-sim/transmission"
	"github.com/elevatorguy/engine-sim/vehicle"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	FileName  = "engine_sim.cfg.json"
	EnvPrefix = "ENGINESIM"
)

// TransmissionConfig holds the gearbox description.
type TransmissionConfig struct {
	GearRatios      []float64 `json:"gearRatios" mapstructure:"gearRatios"`
	MaxClutchTorque float64   `json:"maxClutchTorque" mapstructure:"maxClutchTorque"`
	Variable        bool      `json:"variable" mapstructure:"variable"`
}

// EngineConfig holds the engine description.
type EngineConfig struct {
	TorqueCurve     []engine.CurvePoint `json:"torqueCurve" mapstructure:"torqueCurve"`
	IdleRPM         float64             `json:"idleRpm" mapstructure:"idleRpm"`
	Redline         float64             `json:"redline" mapstructure:"redline"`
	IdleThrottle    float64             `json:"idleThrottle" mapstructure:"idleThrottle"`
	FlywheelInertia float64             `json:"flywheelInertia" mapstructure:"flywheelInertia"`
	Friction        float64             `json:"friction" mapstructure:"friction"`
}

// VehicleConfig holds the vehicle description.
type VehicleConfig struct {
	Mass              float64 `json:"mass" mapstructure:"mass"`
	DiffRatio         float64 `json:"diffRatio" mapstructure:"diffRatio"`
	TireRadius        float64 `json:"tireRadius" mapstructure:"tireRadius"`
	DragCoefficient   float64 `json:"dragCoefficient" mapstructure:"dragCoefficient"`
	RollingResistance float64 `json:"rollingResistance" mapstructure:"rollingResistance"`
}

// ScriptCommand is one scripted driver input. Nil fields are left unchanged.
type ScriptCommand struct {
	At       float64  `json:"at" mapstructure:"at"`
	Gear     *int     `json:"gear" mapstructure:"gear"`
	Clutch   *float64 `json:"clutch" mapstructure:"clutch"`
	Throttle *float64 `json:"throttle" mapstructure:"throttle"`
	Disk     *float64 `json:"disk" mapstructure:"disk"`
	Variable *bool    `json:"variable" mapstructure:"variable"`
}

// SimConfig holds the stepping loop settings.
type SimConfig struct {
	StepsPerSecond int
	Iterations     uint
	SampleEvery    int
	Duration       time.Duration
	Script         []ScriptCommand
}

type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// StorageConfig holds the shift-event recorder settings.
type StorageConfig struct {
	Enabled    bool
	Type       string
	SQLitePath string
	Postgres   PostgresConfig
}

// InfluxConfig holds the telemetry sink settings.
type InfluxConfig struct {
	Enabled    bool
	URL        string
	Token      string
	Org        string
	Bucket     string
	BackupPath string
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string
	File  string
}

// Load reads configuration from the JSON file in configDir, a .env file next to it
// and ENGINESIM_* environment variables, on top of default values.
func Load(configDir string) error {
	// a missing .env is fine
	_ = godotenv.Load(filepath.Join(configDir, ".env"))

	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logFile", "")

	viper.SetDefault("transmission.gearRatios", []float64{3.5, 2.0, 1.3, 1.0, 0.8})
	viper.SetDefault("transmission.maxClutchTorque", units.Torque(1000, units.FtLb))
	viper.SetDefault("transmission.variable", false)

	viper.SetDefault("engine.idleRpm", 800.0)
	viper.SetDefault("engine.redline", 6500.0)
	viper.SetDefault("engine.idleThrottle", 0.1)
	viper.SetDefault("engine.flywheelInertia", 0.2)
	viper.SetDefault("engine.friction", 0.02)
	viper.SetDefault("engine.torqueCurve", []map[string]interface{}{
		{"rpm": 0.0, "torque": 120.0},
		{"rpm": 1000.0, "torque": 180.0},
		{"rpm": 3000.0, "torque": 260.0},
		{"rpm": 5500.0, "torque": 250.0},
		{"rpm": 7000.0, "torque": 200.0},
	})

	viper.SetDefault("vehicle.mass", 1200.0)
	viper.SetDefault("vehicle.diffRatio", 4.0)
	viper.SetDefault("vehicle.tireRadius", 0.3)
	viper.SetDefault("vehicle.dragCoefficient", 0.4)
	viper.SetDefault("vehicle.rollingResistance", 12.0)

	viper.SetDefault("sim.stepsPerSecond", 120)
	viper.SetDefault("sim.iterations", 10)
	viper.SetDefault("sim.sampleEvery", 12)
	viper.SetDefault("sim.duration", "30s")
	viper.SetDefault("sim.script", []map[string]interface{}{})

	viper.SetDefault("storage.enabled", false)
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.sqlite.path", "")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "enginesim")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "engine-sim")
	viper.SetDefault("influx.bucket", "drivetrain")
	viper.SetDefault("influx.backupPath", "./telemetry.lp.gz")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetTransmissionConfig returns the transmission section.
func GetTransmissionConfig() (TransmissionConfig, error) {
	cfg := TransmissionConfig{
		MaxClutchTorque: viper.GetFloat64("transmission.maxClutchTorque"),
		Variable:        viper.GetBool("transmission.variable"),
	}
	if err := viper.UnmarshalKey("transmission.gearRatios", &cfg.GearRatios); err != nil {
		return cfg, fmt.Errorf("error decoding gear ratios: %w", err)
	}
	return cfg, nil
}

func (c TransmissionConfig) Parameters() transmission.Parameters {
	return transmission.Parameters{
		GearRatios:      c.GearRatios,
		MaxClutchTorque: c.MaxClutchTorque,
	}
}

// GetEngineConfig returns the engine section.
func GetEngineConfig() (EngineConfig, error) {
	cfg := EngineConfig{
		IdleRPM:         viper.GetFloat64("engine.idleRpm"),
		Redline:         viper.GetFloat64("engine.redline"),
		IdleThrottle:    viper.GetFloat64("engine.idleThrottle"),
		FlywheelInertia: viper.GetFloat64("engine.flywheelInertia"),
		Friction:        viper.GetFloat64("engine.friction"),
	}
	if err := viper.UnmarshalKey("engine.torqueCurve", &cfg.TorqueCurve); err != nil {
		return cfg, fmt.Errorf("error decoding torque curve: %w", err)
	}
	return cfg, nil
}

func (c EngineConfig) Parameters() engine.Parameters {
	return engine.Parameters{
		TorqueCurve:     c.TorqueCurve,
		IdleRPM:         c.IdleRPM,
		Redline:         c.Redline,
		IdleThrottle:    c.IdleThrottle,
		FlywheelInertia: c.FlywheelInertia,
		Friction:        c.Friction,
	}
}

// GetVehicleConfig returns the vehicle section.
func GetVehicleConfig() VehicleConfig {
	return VehicleConfig{
		Mass:              viper.GetFloat64("vehicle.mass"),
		DiffRatio:         viper.GetFloat64("vehicle.diffRatio"),
		TireRadius:        viper.GetFloat64("vehicle.tireRadius"),
		DragCoefficient:   viper.GetFloat64("vehicle.dragCoefficient"),
		RollingResistance: viper.GetFloat64("vehicle.rollingResistance"),
	}
}

func (c VehicleConfig) Parameters() vehicle.Parameters {
	return vehicle.Parameters{
		Mass:              c.Mass,
		DiffRatio:         c.DiffRatio,
		TireRadius:        c.TireRadius,
		DragCoefficient:   c.DragCoefficient,
		RollingResistance: c.RollingResistance,
	}
}

// GetSimConfig returns the stepping loop settings including the driver script.
func GetSimConfig() (SimConfig, error) {
	cfg := SimConfig{
		StepsPerSecond: viper.GetInt("sim.stepsPerSecond"),
		Iterations:     viper.GetUint("sim.iterations"),
		SampleEvery:    viper.GetInt("sim.sampleEvery"),
		Duration:       viper.GetDuration("sim.duration"),
	}
	if err := viper.UnmarshalKey("sim.script", &cfg.Script); err != nil {
		return cfg, fmt.Errorf("error decoding sim script: %w", err)
	}
	return cfg, nil
}

// GetStorageConfig returns the recorder settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Enabled:    viper.GetBool("storage.enabled"),
		Type:       viper.GetString("storage.type"),
		SQLitePath: viper.GetString("storage.sqlite.path"),
		Postgres: PostgresConfig{
			Host:     viper.GetString("storage.postgres.host"),
			Port:     viper.GetString("storage.postgres.port"),
			Username: viper.GetString("storage.postgres.username"),
			Password: viper.GetString("storage.postgres.password"),
			Database: viper.GetString("storage.postgres.database"),
		},
	}
}

// GetInfluxConfig returns the telemetry settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled: viper.GetBool("influx.enabled"),
		URL: fmt.Sprintf("%s://%s:%s",
			viper.GetString("influx.protocol"),
			viper.GetString("influx.host"),
			viper.GetString("influx.port"),
		),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

// GetLogConfig returns the logger settings.
func GetLogConfig() LogConfig {
	return LogConfig{
		Level: viper.GetString("logLevel"),
		File:  viper.GetString("logFile"),
	}
}
