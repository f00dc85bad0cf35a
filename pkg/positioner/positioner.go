// Package positioner models a single two-axis fiber positioner: its
// identity, calibration, dynamic state, and the motor-step quantization
// algorithm that turns an ideal angular delta into a
// hardware-realizable submove sequence.
package positioner

import (
	"errors"
	"fmt"
	"math"

	"github.com/desi-focalplane/fpanticoll/pkg/coords"
)

// NominalGearRatio is the design motor-to-shaft gear ratio G.
const NominalGearRatio = 337.0

// ErrInvalidCalibration is returned by Validate when a positioner's
// calibration or state violates one of the stored-state invariants.
var ErrInvalidCalibration = errors.New("positioner: invalid calibration")

// Positioner is one device's full state record.
type Positioner struct {
	PosID     string
	BusID     uint32
	CanID     uint32
	DeviceLoc int

	Calib coords.Calibration

	GearCalibT float64 // dimensionless scale on NominalGearRatio, within ±5% of 1
	GearCalibP float64

	// Dynamic state: current posint angles.
	PosT float64
	PosP float64

	// Motion parameters.
	CurrSpinUpDown       float64 // amps
	CurrCruise           float64 // amps
	CurrCreep            float64 // amps
	CreepPeriodMs        float64 // ms between creep steps
	SpinUpDownPeriod     int     // ramp repeat count
	FinalCreepOn         bool
	AntibacklashOn       bool
	OnlyCreep            bool
	MinDistAtCruiseSpeed float64 // deg, external-observer
	Backlash             float64 // deg, external-observer magnitude

	// AntibacklashFinalMoveDirT/P give the sign (+1/-1) of the direction the
	// positioner settles into after backlash removal; the backlash submove
	// moves opposite this direction before the final creep nulls it out.
	AntibacklashFinalMoveDirT float64
	AntibacklashFinalMoveDirP float64

	CtrlEnabled           bool
	ClassifiedAsRetracted bool

	// KeepoutExpansion{Central,Arm,Ferrule} are additive margins (mm)
	// applied when constructing this positioner's keepout polygons
	// (geometry package).
	KeepoutExpansionCentral float64
	KeepoutExpansionArm     float64
	KeepoutExpansionFerrule float64
}

// GearRatio returns the effective motor-to-shaft gear ratio for the given
// axis, combining NominalGearRatio with the per-axis calibration scale.
func (p *Positioner) GearRatio(axis coords.Axis) float64 {
	if axis == coords.AxisTheta {
		return NominalGearRatio * p.GearCalibT
	}
	return NominalGearRatio * p.GearCalibP
}

// TargetableRangeT returns the posintT interval a request may target
// (physical range shrunk by the antibacklash margin on each end).
func (p *Positioner) TargetableRangeT() [2]float64 { return p.Calib.TargetableRangeT }

// TargetableRangeP returns the posintP interval a request may target.
func (p *Positioner) TargetableRangeP() [2]float64 { return p.Calib.TargetableRangeP }

// Validate checks the stored-state invariants: finite arm lengths, offsets
// and current angles; non-negative physical range widths; current posint
// angles within the targetable range; gear calibration within ±5% of unity.
// Arm lengths and currents are not checked against a nominal tolerance.
func (p *Positioner) Validate() error {
	finite := func(name string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite (%v)", ErrInvalidCalibration, name, v)
		}
		return nil
	}
	for name, v := range map[string]float64{
		"LengthR1": p.Calib.LengthR1, "LengthR2": p.Calib.LengthR2,
		"OffsetX": p.Calib.OffsetX, "OffsetY": p.Calib.OffsetY,
		"OffsetT": p.Calib.OffsetT, "OffsetP": p.Calib.OffsetP,
		"PosT": p.PosT, "PosP": p.PosP,
	} {
		if err := finite(name, v); err != nil {
			return err
		}
	}

	rT := p.Calib.PhysicalRangeT
	rP := p.Calib.PhysicalRangeP
	if rT[1]-rT[0] < 0 {
		return fmt.Errorf("%w: PhysicalRangeT must be non-negative width", ErrInvalidCalibration)
	}
	if rP[1]-rP[0] < 0 {
		return fmt.Errorf("%w: PhysicalRangeP must be non-negative width", ErrInvalidCalibration)
	}

	tgtT := p.Calib.TargetableRangeT
	if p.PosT < tgtT[0] || p.PosT > tgtT[1] {
		return fmt.Errorf("%w: PosT=%v outside targetable range %v", ErrInvalidCalibration, p.PosT, tgtT)
	}
	tgtP := p.Calib.TargetableRangeP
	if p.PosP < tgtP[0] || p.PosP > tgtP[1] {
		return fmt.Errorf("%w: PosP=%v outside targetable range %v", ErrInvalidCalibration, p.PosP, tgtP)
	}

	if math.Abs(p.GearCalibT-1) > 0.05 {
		return fmt.Errorf("%w: GearCalibT=%v outside ±5%% of unity", ErrInvalidCalibration, p.GearCalibT)
	}
	if math.Abs(p.GearCalibP-1) > 0.05 {
		return fmt.Errorf("%w: GearCalibP=%v outside ±5%% of unity", ErrInvalidCalibration, p.GearCalibP)
	}

	return nil
}
