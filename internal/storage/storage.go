// Package storage records simulation runs and shift events through gorm, on a
// local SQLite file (or memory) or a Postgres server.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNoActiveRun = errors.New("no active run")

type PostgresConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

type Config struct {
	Type       string // "sqlite" or "postgres"
	SQLitePath string // empty for in-memory
	Postgres   PostgresConfig
}

// Recorder persists runs and their shift events.
type Recorder struct {
	DB     *gorm.DB
	Logger zerolog.Logger

	run *Run
}

// Open connects to the configured database and migrates the schema.
func Open(cfg Config, log zerolog.Logger) (*Recorder, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "", "sqlite":
		dsn := cfg.SQLitePath
		if dsn == "" {
			dsn = ":memory:"
		}
		dialector = sqlite.Open(dsn)
	case "postgres":
		dsn := fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
			cfg.Postgres.Host,
			cfg.Postgres.Port,
			cfg.Postgres.Username,
			cfg.Postgres.Password,
			cfg.Postgres.Database,
		)
		dialector = postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		})
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialector.Name(), err)
	}

	if dialector.Name() == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sql interface: %w", err)
		}
		// one connection keeps an in-memory database alive and serializes writers
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(Models...); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.Info().Str("dialect", dialector.Name()).Msg("Connected to database")
	return &Recorder{DB: db, Logger: log}, nil
}

// BeginRun opens a new run; subsequent shift events attach to it.
func (r *Recorder) BeginRun(gearRatios []float64, maxClutchTorque float64, variable bool) (*Run, error) {
	ratios, err := json.Marshal(gearRatios)
	if err != nil {
		return nil, fmt.Errorf("error encoding gear ratios: %w", err)
	}

	run := &Run{
		StartedAt:       time.Now().UTC(),
		GearRatios:      ratios,
		MaxClutchTorque: maxClutchTorque,
		Variable:        variable,
		FinalGear:       -1,
	}
	if err := r.DB.Create(run).Error; err != nil {
		return nil, fmt.Errorf("error creating run: %w", err)
	}

	r.run = run
	r.Logger.Debug().Uint("run", run.ID).Msg("Run started")
	return run, nil
}

// RecordShift stores a shift event against the active run.
func (r *Recorder) RecordShift(event *ShiftEvent) error {
	if r.run == nil {
		return ErrNoActiveRun
	}
	event.RunID = r.run.ID
	if err := r.DB.Create(event).Error; err != nil {
		return fmt.Errorf("error recording shift: %w", err)
	}
	return nil
}

// EndRun closes the active run.
func (r *Recorder) EndRun(ticks int64, finalGear int) error {
	if r.run == nil {
		return ErrNoActiveRun
	}
	now := time.Now().UTC()
	err := r.DB.Model(r.run).Updates(map[string]interface{}{
		"ended_at":   now,
		"ticks":      ticks,
		"final_gear": finalGear,
	}).Error
	if err != nil {
		return fmt.Errorf("error closing run: %w", err)
	}

	r.Logger.Debug().Uint("run", r.run.ID).Int64("ticks", ticks).Msg("Run ended")
	r.run = nil
	return nil
}

// Shifts returns the shift events of a run in simulation order.
func (r *Recorder) Shifts(runID uint) ([]ShiftEvent, error) {
	var events []ShiftEvent
	err := r.DB.Where("run_id = ?", runID).Order("sim_time, id").Find(&events).Error
	return events, err
}

// GetRun loads a run by id.
func (r *Recorder) GetRun(runID uint) (*Run, error) {
	var run Run
	if err := r.DB.First(&run, runID).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *Recorder) Close() error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
