package scs

import "math"

func Clamp(f, min, max float64) float64 {
	return math.Min(math.Max(f, min), max)
}

func Clamp01(f float64) float64 {
	return Clamp(f, 0, 1)
}

// Lerp returns f1 at t=0 and f2 at t=1.
func Lerp(f1, f2, t float64) float64 {
	return f1 + (f2-f1)*t
}
