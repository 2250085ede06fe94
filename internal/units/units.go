// Package units converts between the SI units used by the simulation and the
// customary units found in engine and gearbox data sheets.
package units

import "math"

const (
	NewtonMeter = 1.0
	FtLb        = 1.35582

	RadPerSec = 1.0
	RPM       = 2 * math.Pi / 60.0

	MetersPerSec = 1.0
	KmH          = 1000.0 / 3600.0
	MPH          = 1609.344 / 3600.0
)

// Torque converts a torque expressed in unit into N·m.
func Torque(value, unit float64) float64 {
	return value * unit
}

// AngularVelocity converts an angular speed expressed in unit into rad/s.
func AngularVelocity(value, unit float64) float64 {
	return value * unit
}

// ToRPM converts rad/s into revolutions per minute.
func ToRPM(radPerSec float64) float64 {
	return radPerSec / RPM
}

func Speed(value, unit float64) float64 {
	return value * unit
}

func ToKmH(metersPerSec float64) float64 {
	return metersPerSec / KmH
}
