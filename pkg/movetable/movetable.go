// Package movetable accumulates per-positioner move requests into an
// ordered table of rows, quantizes them via positioner.TrueMove, and
// exposes three derived views: schedule, hardware, and cleanup.
package movetable

import (
	"github.com/desi-focalplane/fpanticoll/pkg/coords"
	"github.com/desi-focalplane/fpanticoll/pkg/positioner"
)

// MoveRow is one submove request of one axis-pair.
type MoveRow struct {
	DTIdeal float64 // deg, external-observer
	DPIdeal float64

	PrePause  float64 // seconds
	PostPause float64 // seconds

	// Command/CmdVal1/CmdVal2 carry the original request form for logging,
	// e.g. "poslocXY", 1.5, 1.5.
	Command string
	CmdVal1 float64
	CmdVal2 float64
}

// combinedStep is one row of the synchronized T/P submove sequence after
// CalculateTrueMoves has padded and zipped the two axes together.
type combinedStep struct {
	T positioner.Submove
	P positioner.Submove

	PrePause  float64
	PostPause float64
}

func (s combinedStep) duration() float64 {
	if s.T.MoveTime > s.P.MoveTime {
		return s.T.MoveTime
	}
	return s.P.MoveTime
}

// MoveTable is the ordered list of submove rows for one positioner, plus
// the policy flags snapshotted at build time.
type MoveTable struct {
	PosID string
	Pos   *positioner.Positioner

	Rows      []MoveRow
	RowsExtra []MoveRow // auto-generated backlash + final-creep rows

	ShouldAntibacklash bool
	ShouldFinalCreep   bool
	AllowCruise        bool
	AllowExceedLimits  bool
	CreepAfterCruise   bool

	calculated     []combinedStep
	cleanupRows    []CleanupRow // per-row quantized net deltas, after CalculateTrueMoves
	netT, netP     float64      // cumulative quantized net distance, after CalculateTrueMoves
	idealT, idealP float64      // cumulative ideal (pre-quantization) distance across Rows
}

// New creates an empty move table for the given positioner, snapshotting
// its current policy flags.
func New(pos *positioner.Positioner) *MoveTable {
	return &MoveTable{
		PosID:              pos.PosID,
		Pos:                pos,
		ShouldAntibacklash: pos.AntibacklashOn,
		ShouldFinalCreep:   pos.FinalCreepOn,
		AllowCruise:        true,
	}
}

// SetMove appends (or, if rowIndex addresses an existing row, overwrites)
// the ideal angular delta for a row.
func (m *MoveTable) SetMove(rowIndex int, dT, dP float64, command string, val1, val2 float64) {
	for len(m.Rows) <= rowIndex {
		m.Rows = append(m.Rows, MoveRow{})
	}
	m.Rows[rowIndex].DTIdeal = dT
	m.Rows[rowIndex].DPIdeal = dP
	m.Rows[rowIndex].Command = command
	m.Rows[rowIndex].CmdVal1 = val1
	m.Rows[rowIndex].CmdVal2 = val2
}

// SetPrePause sets the leading pause (seconds) before the given row.
func (m *MoveTable) SetPrePause(rowIndex int, seconds float64) {
	for len(m.Rows) <= rowIndex {
		m.Rows = append(m.Rows, MoveRow{})
	}
	m.Rows[rowIndex].PrePause = seconds
}

// SetPostPause sets the trailing pause (seconds) after the given row.
func (m *MoveTable) SetPostPause(rowIndex int, seconds float64) {
	for len(m.Rows) <= rowIndex {
		m.Rows = append(m.Rows, MoveRow{})
	}
	m.Rows[rowIndex].PostPause = seconds
}

// Extend concatenates another table's rows onto this one. The appended
// table's policy flags are inherited.
func (m *MoveTable) Extend(other *MoveTable) {
	m.Rows = append(m.Rows, other.Rows...)
	m.ShouldAntibacklash = other.ShouldAntibacklash
	m.ShouldFinalCreep = other.ShouldFinalCreep
	m.AllowCruise = other.AllowCruise
	m.AllowExceedLimits = other.AllowExceedLimits
	m.CreepAfterCruise = other.CreepAfterCruise
}

// CalculateTrueMoves quantizes every row via positioner.TrueMove, zips the
// two axes' independently generated submove lists row-by-row (zero-padding
// the shorter axis so both have equal row count), and synthesizes the
// antibacklash + final-creep rows.
func (m *MoveTable) CalculateTrueMoves() {
	m.calculated = nil
	m.cleanupRows = nil
	m.RowsExtra = nil
	m.netT, m.netP = 0, 0
	m.idealT, m.idealP = 0, 0

	flags := positioner.MoveFlags{
		AllowCruise:       m.AllowCruise,
		CreepAfterCruise:  m.CreepAfterCruise,
		AllowExceedLimits: m.AllowExceedLimits,
	}

	for _, row := range m.Rows {
		m.idealT += row.DTIdeal
		m.idealP += row.DPIdeal

		tMoves := positioner.TrueMove(m.Pos, coords.AxisTheta, row.DTIdeal, flags, m.netT)
		pMoves := positioner.TrueMove(m.Pos, coords.AxisPhi, row.DPIdeal, flags, m.netP)
		m.netT += tMoves.NetObsDistance()
		m.netP += pMoves.NetObsDistance()
		m.cleanupRows = append(m.cleanupRows, CleanupRow{
			DT: tMoves.NetObsDistance(), DP: pMoves.NetObsDistance(),
			Command: row.Command, CmdVal1: row.CmdVal1, CmdVal2: row.CmdVal2,
		})

		m.appendZipped(tMoves, pMoves, row.PrePause, row.PostPause)
	}

	backlashApplied := false
	if m.ShouldAntibacklash {
		if dt := m.backlashDelta(coords.AxisTheta); dt != 0 {
			m.appendSyntheticRow(coords.AxisTheta, dt, "ANTIBACKLASH")
			backlashApplied = true
		}
		if dp := m.backlashDelta(coords.AxisPhi); dp != 0 {
			m.appendSyntheticRow(coords.AxisPhi, dp, "ANTIBACKLASH")
			backlashApplied = true
		}
	}

	if m.ShouldFinalCreep || backlashApplied {
		residualT := m.idealT - m.netT
		residualP := m.idealP - m.netP
		if residualT != 0 {
			m.appendSyntheticRow(coords.AxisTheta, residualT, "FINAL_CREEP")
		}
		if residualP != 0 {
			m.appendSyntheticRow(coords.AxisPhi, residualP, "FINAL_CREEP")
		}
	}
}

// backlashDelta returns the signed backlash-removal delta for the given
// axis: zero if the axis had no net motion this schedule, otherwise
// Pos.Backlash magnitude opposite the axis's antibacklash final-move
// direction.
func (m *MoveTable) backlashDelta(axis coords.Axis) float64 {
	net := m.netT
	dir := m.Pos.AntibacklashFinalMoveDirT
	if axis == coords.AxisPhi {
		net = m.netP
		dir = m.Pos.AntibacklashFinalMoveDirP
	}
	if net == 0 || dir == 0 {
		return 0
	}
	if dir > 0 {
		return -m.Pos.Backlash
	}
	return m.Pos.Backlash
}

// appendSyntheticRow quantizes and appends a single-axis synthetic row
// (backlash or final-creep), recording it in RowsExtra for introspection.
func (m *MoveTable) appendSyntheticRow(axis coords.Axis, delta float64, label string) {
	row := MoveRow{Command: label}
	if axis == coords.AxisTheta {
		row.DTIdeal = delta
	} else {
		row.DPIdeal = delta
	}
	m.RowsExtra = append(m.RowsExtra, row)

	flags := positioner.MoveFlags{AllowCruise: false, AllowExceedLimits: true}
	if axis == coords.AxisTheta {
		moves := positioner.TrueMove(m.Pos, coords.AxisTheta, delta, flags, m.netT)
		m.netT += moves.NetObsDistance()
		m.cleanupRows = append(m.cleanupRows, CleanupRow{DT: moves.NetObsDistance(), Command: label})
		m.appendZipped(moves, nil, 0, 0)
	} else {
		moves := positioner.TrueMove(m.Pos, coords.AxisPhi, delta, flags, m.netP)
		m.netP += moves.NetObsDistance()
		m.cleanupRows = append(m.cleanupRows, CleanupRow{DP: moves.NetObsDistance(), Command: label})
		m.appendZipped(nil, moves, 0, 0)
	}
}

// appendZipped zero-pads the shorter of tMoves/pMoves and appends the
// zipped combinedSteps.
func (m *MoveTable) appendZipped(tMoves, pMoves positioner.SubmoveList, prePause, postPause float64) {
	n := len(tMoves)
	if len(pMoves) > n {
		n = len(pMoves)
	}
	if n == 0 {
		n = 1 // still emit a zero-motion row so prepause/postpause are not lost
	}
	for i := 0; i < n; i++ {
		step := combinedStep{}
		if i < len(tMoves) {
			step.T = tMoves[i]
		}
		if i < len(pMoves) {
			step.P = pMoves[i]
		}
		if i == 0 {
			step.PrePause = prePause
		}
		if i == n-1 {
			step.PostPause = postPause
		}
		m.calculated = append(m.calculated, step)
	}
}
