package movetable

import (
	"testing"

	"github.com/desi-focalplane/fpanticoll/pkg/coords"
	"github.com/desi-focalplane/fpanticoll/pkg/positioner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPositioner() *positioner.Positioner {
	return &positioner.Positioner{
		PosID:      "M00001",
		DeviceLoc:  1,
		GearCalibT: 1.0,
		GearCalibP: 1.0,
		Calib: coords.Calibration{
			LengthR1:         3.0,
			LengthR2:         3.0,
			PhysicalRangeT:   [2]float64{-200, 200},
			PhysicalRangeP:   [2]float64{-20, 200},
			TargetableRangeT: [2]float64{-180, 180},
			TargetableRangeP: [2]float64{0, 180},
			MinPatrol:        0.1,
			MaxPatrol:        6.0,
		},
		PosT: 0, PosP: 150,
		MinDistAtCruiseSpeed: 5.0,
		Backlash:              0.2,
		AntibacklashFinalMoveDirT: 1,
		AntibacklashFinalMoveDirP: 1,
		SpinUpDownPeriod:          1,
	}
}

func TestMoveTable_SimpleRowRoundTrips(t *testing.T) {
	pos := testPositioner()
	mt := New(pos)
	mt.SetMove(0, 10, -5, "dTdP", 10, -5)
	mt.CalculateTrueMoves()

	netT, netP := mt.NetDistance()
	assert.InDelta(t, 10, netT, 1e-6)
	assert.InDelta(t, -5, netP, 1e-6)
}

func TestMoveTable_HardwareViewHasLeadingPrePauseRow(t *testing.T) {
	pos := testPositioner()
	mt := New(pos)
	mt.SetMove(0, 1, 1, "dTdP", 1, 1)
	mt.SetPrePause(0, 2.5)
	mt.CalculateTrueMoves()

	hw := mt.HardwareView()
	require.NotEmpty(t, hw)
	assert.Equal(t, uint16(2500), hw[0].PostPauseMs)
	assert.Equal(t, int32(0), hw[0].MotorStepsT)
}

func TestMoveTable_AntibacklashAppendsRowsExtra(t *testing.T) {
	pos := testPositioner()
	pos.AntibacklashOn = true
	mt := New(pos)
	mt.SetMove(0, 20, 0, "dTdP", 20, 0)
	mt.CalculateTrueMoves()

	require.NotEmpty(t, mt.RowsExtra)
	assert.Equal(t, "ANTIBACKLASH", mt.RowsExtra[0].Command)
}

func TestMoveTable_FinalCreepNullsResidual(t *testing.T) {
	pos := testPositioner()
	pos.FinalCreepOn = true
	mt := New(pos)
	mt.SetMove(0, 37, 0, "dTdP", 37, 0)
	mt.CalculateTrueMoves()

	netT, _ := mt.NetDistance()
	assert.InDelta(t, 37, netT, 1e-6)
}

// Requesting a zero-delta move must not generate motion.
func TestMoveTable_ZeroRequestProducesZeroOrCancellationOnlyMotion(t *testing.T) {
	pos := testPositioner()
	mt := New(pos)
	mt.SetMove(0, 0, 0, "dTdP", 0, 0)
	mt.CalculateTrueMoves()

	netT, netP := mt.NetDistance()
	assert.InDelta(t, 0, netT, 1e-6)
	assert.InDelta(t, 0, netP, 1e-6)
}

func TestMoveTable_Extend_InheritsFlags(t *testing.T) {
	pos := testPositioner()
	a := New(pos)
	b := New(pos)
	b.ShouldAntibacklash = true
	b.SetMove(0, 5, 0, "dTdP", 5, 0)

	a.Extend(b)
	assert.True(t, a.ShouldAntibacklash)
	assert.Len(t, a.Rows, 1)
}

func TestMoveTable_IsZeroMotionForFrozenTable(t *testing.T) {
	pos := testPositioner()
	mt := New(pos)
	mt.CalculateTrueMoves()
	assert.True(t, mt.IsZeroMotion())
}

// The cleanup view must report the quantized motion the hardware actually
// travels, not the requested ideal deltas: its per-row sum is exactly the
// table's net distance.
func TestMoveTable_CleanupViewMatchesQuantizedNet(t *testing.T) {
	pos := testPositioner()
	pos.AntibacklashOn = true
	pos.FinalCreepOn = true
	mt := New(pos)
	mt.SetMove(0, 23.456, -7.89, "dTdP", 23.456, -7.89)
	mt.CalculateTrueMoves()

	var sumT, sumP float64
	for _, row := range mt.CleanupView() {
		sumT += row.DT
		sumP += row.DP
	}
	netT, netP := mt.NetDistance()
	assert.InDelta(t, netT, sumT, 1e-12)
	assert.InDelta(t, netP, sumP, 1e-12)

	rows := mt.CleanupView()
	require.Greater(t, len(rows), 1, "backlash and final-creep rows must appear")
	assert.Equal(t, "dTdP", rows[0].Command)
	assert.Equal(t, "ANTIBACKLASH", rows[1].Command)
}
