package speed

import (
	"fmt"
	"slices"
)

// Units in which a speed can be reported
const (
	PixelsPerSecond = "px/s"
	MPS             = "mps"
	KPH             = "kph"
	KMPH            = "kmph"
	MPH             = "mph"
)

var validUnits = []string{PixelsPerSecond, MPS, KPH, KMPH, MPH}

// ValidateUnit returns an error if unit is not one of the known unit names.
// An empty string is accepted, and means px/s.
func ValidateUnit(unit string) error {
	if unit == "" || slices.Contains(validUnits, unit) {
		return nil
	}
	return fmt.Errorf("invalid speed unit '%v' (valid units are %v)", unit, validUnits)
}

// Calibration maps image distance to ground distance.
// Without a calibration, only px/s can be reported.
type Calibration struct {
	PixelsPerMetre float64 `json:"pixelsPerMetre"`
}

func (c Calibration) IsCalibrated() bool {
	return c.PixelsPerMetre > 0
}

// ToUnit converts a speed in pixels per second to the given unit.
// If the calibration is missing, or the unit is px/s, the nominal pixel speed is returned.
func (c Calibration) ToUnit(pxPerSecond float64, unit string) float64 {
	if !c.IsCalibrated() {
		return pxPerSecond
	}
	mps := pxPerSecond / c.PixelsPerMetre
	switch unit {
	case MPS:
		return mps
	case KPH, KMPH:
		return mps * 3.6
	case MPH:
		return mps * 2.2369362920544
	default:
		return pxPerSecond
	}
}

// FromUnit is the inverse of ToUnit. It is used to express a speed limit
// given in physical units as a pixel speed.
func (c Calibration) FromUnit(v float64, unit string) float64 {
	if !c.IsCalibrated() {
		return v
	}
	switch unit {
	case MPS:
		return v * c.PixelsPerMetre
	case KPH, KMPH:
		return v / 3.6 * c.PixelsPerMetre
	case MPH:
		return v / 2.2369362920544 * c.PixelsPerMetre
	default:
		return v
	}
}

// UnitLabel returns the label to show next to a speed. Uncalibrated speeds are always px/s.
func (c Calibration) UnitLabel(unit string) string {
	if !c.IsCalibrated() || unit == "" {
		return PixelsPerSecond
	}
	return unit
}
