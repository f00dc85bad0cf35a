package positioner

import (
	"math"

	"github.com/desi-focalplane/fpanticoll/pkg/coords"
)

// Motor-step quantization constants. These are design
// constants of the quantization scheme, not per-positioner calibration.
const (
	CruiseMotorStepDeg    = 3.3 // motor-shaft degrees per cruise step
	CreepMotorStepDeg     = 0.1 // motor-shaft degrees per creep step
	SpinRampSteps         = 33  // triangular ramp length, in steps
	SpinRampStepDeg       = 0.1 // motor-shaft degrees contributed per ramp step index
	CruiseStepPeriodMs    = 1.1 // ms per cruise/ramp step
	CreepAfterCruiseDegM  = 1.0 // motor-shaft degrees of the terminal creep-after-cruise submove
)

// SpeedMode tags a submove as running at cruise or creep speed.
type SpeedMode int

const (
	Cruise SpeedMode = iota
	Creep
)

func (m SpeedMode) String() string {
	if m == Cruise {
		return "cruise"
	}
	return "creep"
}

// Submove is one quantized motor-step block within a row.
type Submove struct {
	MotorSteps  int32 // signed step count
	SpeedMode   SpeedMode
	MoveTime    float64 // seconds
	ObsDistance float64 // deg, external-observer
	ObsSpeed    float64 // deg/s, external-observer, signed
}

// SubmoveList is the ordered result of TrueMove for one axis of one row.
type SubmoveList []Submove

// NetObsDistance sums the signed observer-frame distance of every submove.
func (l SubmoveList) NetObsDistance() float64 {
	var sum float64
	for _, s := range l {
		sum += s.ObsDistance
	}
	return sum
}

// MoveFlags controls the quantization policy for one TrueMove call.
type MoveFlags struct {
	AllowCruise       bool
	CreepAfterCruise  bool
	AllowExceedLimits bool
}

// rampDistanceDeg is the total motor-shaft degrees consumed by one spin
// ramp (up or down), repeated `period` times.
func rampDistanceDeg(period int) float64 {
	sum := 0.0
	for k := 1; k <= SpinRampSteps; k++ {
		sum += SpinRampStepDeg * float64(k)
	}
	return sum * float64(period)
}

func targetableRange(p *Positioner, axis coords.Axis) [2]float64 {
	if axis == coords.AxisTheta {
		return p.TargetableRangeT()
	}
	return p.TargetableRangeP()
}

func currentPos(p *Positioner, axis coords.Axis) float64 {
	if axis == coords.AxisTheta {
		return p.PosT
	}
	return p.PosP
}

// TrueMove quantizes an ideal external-observer angular delta into the
// true motor-step submove sequence for one axis:
//
//  1. Clamp delta so end-of-move stays within the targetable range, unless
//     flags.AllowExceedLimits is set.
//  2. Convert to motor-shaft degrees via the gear ratio.
//  3. Split into cruise (spin-up + cruise + spin-down) and creep portions.
//  4. Optionally append a terminal creep-after-cruise submove.
//  5. Compute per-submove move time, observer distance, and observer speed.
func TrueMove(p *Positioner, axis coords.Axis, deltaIdeal float64, flags MoveFlags, priorNet float64) SubmoveList {
	deltaIdeal = clampForRange(p, axis, deltaIdeal, flags, priorNet)

	gearRatio := p.GearRatio(axis)
	deltaShaft := deltaIdeal * gearRatio
	sign := 1.0
	if deltaShaft < 0 {
		sign = -1.0
	}
	absShaft := math.Abs(deltaShaft)

	var out SubmoveList
	usedCruise := false

	minCruiseShaft := p.MinDistAtCruiseSpeed * gearRatio
	if absShaft >= minCruiseShaft && flags.AllowCruise && !p.OnlyCreep && minCruiseShaft > 0 {
		ramp := rampDistanceDeg(p.SpinUpDownPeriod)
		cruiseBudget := absShaft - 2*ramp
		if cruiseBudget < 0 {
			cruiseBudget = 0
		}
		cruiseSteps := int32(cruiseBudget / CruiseMotorStepDeg)
		cruiseUsed := float64(cruiseSteps) * CruiseMotorStepDeg
		remainder := absShaft - 2*ramp - cruiseUsed
		if remainder < 0 {
			remainder = 0
		}

		rampSteps := int32(SpinRampSteps * p.SpinUpDownPeriod)
		out = append(out, buildRampSubmove(rampSteps, ramp, sign, gearRatio))
		out = append(out, buildSubmove(cruiseSteps, Cruise, sign, gearRatio, p.CreepPeriodMs))
		out = append(out, buildRampSubmove(rampSteps, ramp, sign, gearRatio))
		usedCruise = true

		if remainder > 0 {
			creepSteps := int32(math.Round(remainder / CreepMotorStepDeg))
			if creepSteps > 0 {
				out = append(out, buildSubmove(creepSteps, Creep, sign, gearRatio, p.CreepPeriodMs))
			}
		}
	} else {
		creepSteps := int32(math.Round(absShaft / CreepMotorStepDeg))
		out = append(out, buildSubmove(creepSteps, Creep, sign, gearRatio, p.CreepPeriodMs))
	}

	if flags.CreepAfterCruise && usedCruise {
		steps := int32(math.Round(CreepAfterCruiseDegM / CreepMotorStepDeg))
		out = append(out, buildSubmove(steps, Creep, sign, gearRatio, p.CreepPeriodMs))
	}

	return out
}

// buildRampSubmove builds the spin-up/spin-down submove. Its step count is
// the number of discrete ramp steps (for hardware bookkeeping), but its
// traveled distance is the analytic triangular-sequence sum computed by
// rampDistanceDeg, not steps*a single step size -- the ramp's per-step size
// itself increases from 0.1° to 3.3° across the sequence.
func buildRampSubmove(steps int32, distanceShaftUnsigned, sign, gearRatio float64) Submove {
	distanceShaft := distanceShaftUnsigned * sign
	moveTime := float64(steps) * CruiseStepPeriodMs / 1000.0
	obsDistance := distanceShaft / gearRatio
	obsSpeed := 0.0
	if moveTime > 0 {
		obsSpeed = obsDistance / moveTime
	}
	return Submove{
		MotorSteps:  int32(sign) * steps,
		SpeedMode:   Cruise,
		MoveTime:    moveTime,
		ObsDistance: obsDistance,
		ObsSpeed:    obsSpeed,
	}
}

func buildSubmove(steps int32, mode SpeedMode, sign, gearRatio, creepPeriodMs float64) Submove {
	stepDeg := CruiseMotorStepDeg
	periodMs := CruiseStepPeriodMs
	if mode == Creep {
		stepDeg = CreepMotorStepDeg
		if creepPeriodMs > 0 {
			periodMs = creepPeriodMs
		}
	}
	distanceShaft := float64(steps) * stepDeg * sign
	moveTime := float64(steps) * periodMs / 1000.0
	obsDistance := distanceShaft / gearRatio
	obsSpeed := 0.0
	if moveTime > 0 {
		obsSpeed = obsDistance / moveTime
	}
	return Submove{
		MotorSteps:  int32(sign) * steps,
		SpeedMode:   mode,
		MoveTime:    moveTime,
		ObsDistance: obsDistance,
		ObsSpeed:    obsSpeed,
	}
}

// clampForRange enforces step 1 of the TrueMove algorithm: unless exceeding
// limits is explicitly allowed, the end-of-move position must stay within
// the axis's targetable range.
func clampForRange(p *Positioner, axis coords.Axis, deltaIdeal float64, flags MoveFlags, priorNet float64) float64 {
	if flags.AllowExceedLimits {
		return deltaIdeal
	}
	rng := targetableRange(p, axis)
	start := currentPos(p, axis) + priorNet
	end := start + deltaIdeal
	if end > rng[1] {
		return rng[1] - start
	}
	if end < rng[0] {
		return rng[0] - start
	}
	return deltaIdeal
}
