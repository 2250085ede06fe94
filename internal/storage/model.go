package storage

import (
	"time"

	"gorm.io/datatypes"
)

// Run is one simulation session.
type Run struct {
	ID              uint `gorm:"primarykey"`
	StartedAt       time.Time
	EndedAt         *time.Time
	GearRatios      datatypes.JSON
	MaxClutchTorque float64
	Variable        bool
	Ticks           int64
	FinalGear       int
	Shifts          []ShiftEvent `gorm:"constraint:OnDelete:CASCADE"`
}

// ShiftEvent is one gear change request and its effect on the drivetrain body.
type ShiftEvent struct {
	ID            uint `gorm:"primarykey"`
	RunID         uint `gorm:"index"`
	SimTime       float64
	RequestedGear int
	FromGear      int
	ToGear        int
	Accepted      bool
	EngineRPM     float64
	SpeedBefore   float64 // drivetrain rad/s
	SpeedAfter    float64
	EnergyBefore  float64 // J
	EnergyAfter   float64
	MomentAfter   float64 // kg·m²
}

// Models lists everything AutoMigrate manages.
var Models = []interface{}{
	&Run{},
	&ShiftEvent{},
}
