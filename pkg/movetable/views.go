package movetable

import "github.com/desi-focalplane/fpanticoll/pkg/positioner"

// ScheduleRow is one row of the schedule view: degrees, seconds, per-row
// net T/P and speeds, consumed by the collider to reconstruct a sweep.
type ScheduleRow struct {
	DT, DP         float64 // deg, net for this row
	SpeedT, SpeedP float64 // deg/s, signed
	Duration       float64 // seconds, the row's total move time
	PrePause       float64
	PostPause      float64
}

// ScheduleView returns the degrees/seconds/speeds view consumed by the
// collider.
func (m *MoveTable) ScheduleView() []ScheduleRow {
	out := make([]ScheduleRow, 0, len(m.calculated))
	for _, s := range m.calculated {
		out = append(out, ScheduleRow{
			DT:        s.T.ObsDistance,
			DP:        s.P.ObsDistance,
			SpeedT:    s.T.ObsSpeed,
			SpeedP:    s.P.ObsSpeed,
			Duration:  s.duration(),
			PrePause:  s.PrePause,
			PostPause: s.PostPause,
		})
	}
	return out
}

// HardwareRow is one row of the hardware view: motor steps, speed mode,
// and integer-millisecond postpause -- the artifact that leaves this
// module for the hardware.
type HardwareRow struct {
	MotorStepsT int32
	MotorStepsP int32
	SpeedModeT  positioner.SpeedMode
	SpeedModeP  positioner.SpeedMode
	MoveTimeMs  uint32
	PostPauseMs uint16
}

// HardwareView returns the motor-step view that is ultimately handed to
// the transport collaborator. Leading prepauses are realized as leading
// pause-only rows.
func (m *MoveTable) HardwareView() []HardwareRow {
	out := make([]HardwareRow, 0, len(m.calculated)+1)
	for _, s := range m.calculated {
		if s.PrePause > 0 {
			out = append(out, HardwareRow{PostPauseMs: msClamp(s.PrePause)})
		}
		out = append(out, HardwareRow{
			MotorStepsT: s.T.MotorSteps,
			MotorStepsP: s.P.MotorSteps,
			SpeedModeT:  s.T.SpeedMode,
			SpeedModeP:  s.P.SpeedMode,
			MoveTimeMs:  uint32(s.duration() * 1000),
			PostPauseMs: msClamp(s.PostPause),
		})
	}
	return out
}

func msClamp(seconds float64) uint16 {
	ms := seconds * 1000
	if ms < 0 {
		return 0
	}
	if ms > 65535 {
		return 65535
	}
	return uint16(ms)
}

// CleanupRow is one row of the cleanup view: the quantized net (dT,dP) the
// hardware actually travels for that row, plus the original command
// strings, used to update positioner state after physical execution.
type CleanupRow struct {
	DT, DP  float64
	Command string
	CmdVal1 float64
	CmdVal2 float64
}

// CleanupView returns the per-row quantized net (dT,dP) and original
// command forms used to update stored positioner state after execution.
// The deltas come from the same quantized submoves the schedule view is
// built from, so summing them reproduces NetDistance exactly; the ideal
// requested deltas in Rows are not what the motors move.
func (m *MoveTable) CleanupView() []CleanupRow {
	out := make([]CleanupRow, len(m.cleanupRows))
	copy(out, m.cleanupRows)
	return out
}

// NetDistance returns the total quantized (post-clamp, post-backlash,
// post-final-creep) net distance per axis.
func (m *MoveTable) NetDistance() (dT, dP float64) {
	return m.netT, m.netP
}

// TotalMoveTime sums every combined step's duration, used for max-submove
// bookkeeping in stats.ScheduleStats.
func (m *MoveTable) TotalMoveTime() float64 {
	var total float64
	for _, s := range m.calculated {
		total += s.PrePause + s.duration() + s.PostPause
	}
	return total
}

// IsZeroMotion reports whether every row in the hardware view moves neither
// axis -- true for a positioner resolved via Freeze.
func (m *MoveTable) IsZeroMotion() bool {
	for _, s := range m.calculated {
		if s.T.MotorSteps != 0 || s.P.MotorSteps != 0 {
			return false
		}
	}
	return true
}
