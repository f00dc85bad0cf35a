package positioner

import (
	"testing"

	"github.com/desi-focalplane/fpanticoll/pkg/coords"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPositioner() *Positioner {
	return &Positioner{
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
		PosT:                 0,
		PosP:                 150,
		CreepPeriodMs:        10,
		SpinUpDownPeriod:      1,
		MinDistAtCruiseSpeed: 5.0,
		Backlash:             0.2,
	}
}

func TestTrueMove_SmallDeltaIsCreepOnly(t *testing.T) {
	p := testPositioner()
	moves := TrueMove(p, coords.AxisTheta, 0.5, MoveFlags{AllowCruise: true}, 0)
	require.Len(t, moves, 1)
	assert.Equal(t, Creep, moves[0].SpeedMode)
}

func TestTrueMove_LargeDeltaUsesCruiseBlock(t *testing.T) {
	p := testPositioner()
	moves := TrueMove(p, coords.AxisTheta, 90, MoveFlags{AllowCruise: true}, 0)
	require.GreaterOrEqual(t, len(moves), 3)
	assert.Equal(t, Cruise, moves[0].SpeedMode)
	assert.Equal(t, Cruise, moves[1].SpeedMode)
	assert.Equal(t, Cruise, moves[2].SpeedMode)
}

func TestTrueMove_OnlyCreepForcesCreep(t *testing.T) {
	p := testPositioner()
	p.OnlyCreep = true
	moves := TrueMove(p, coords.AxisTheta, 90, MoveFlags{AllowCruise: true}, 0)
	for _, m := range moves {
		assert.Equal(t, Creep, m.SpeedMode)
	}
}

func TestTrueMove_CreepAfterCruiseAppendsTerminalSubmove(t *testing.T) {
	p := testPositioner()
	withTerminal := TrueMove(p, coords.AxisTheta, 90, MoveFlags{AllowCruise: true, CreepAfterCruise: true}, 0)
	withoutTerminal := TrueMove(p, coords.AxisTheta, 90, MoveFlags{AllowCruise: true, CreepAfterCruise: false}, 0)
	assert.Equal(t, len(withoutTerminal)+1, len(withTerminal))
	assert.Equal(t, Creep, withTerminal[len(withTerminal)-1].SpeedMode)
}

// A larger delta never produces fewer motor steps.
func TestTrueMove_QuantizationMonotonicity(t *testing.T) {
	p := testPositioner()
	d1 := TrueMove(p, coords.AxisTheta, 10, MoveFlags{AllowCruise: true}, 0)
	d2 := TrueMove(p, coords.AxisTheta, 50, MoveFlags{AllowCruise: true}, 0)

	total := func(l SubmoveList) int64 {
		var n int64
		for _, s := range l {
			if s.MotorSteps < 0 {
				n -= int64(s.MotorSteps)
			} else {
				n += int64(s.MotorSteps)
			}
		}
		return n
	}
	assert.GreaterOrEqual(t, total(d2), total(d1))
}

func TestTrueMove_ClampsToTargetableRangeUnlessExceedAllowed(t *testing.T) {
	p := testPositioner()
	p.PosT = 170
	moves := TrueMove(p, coords.AxisTheta, 50, MoveFlags{AllowCruise: true}, 0)
	net := moves.NetObsDistance()
	assert.InDelta(t, 10, net, 0.5) // clamped to reach 180, the range max

	unclamped := TrueMove(p, coords.AxisTheta, 50, MoveFlags{AllowCruise: true, AllowExceedLimits: true}, 0)
	assert.Greater(t, unclamped.NetObsDistance(), net)
}

func TestTrueMove_NegativeDeltaProducesNegativeSteps(t *testing.T) {
	p := testPositioner()
	moves := TrueMove(p, coords.AxisTheta, -90, MoveFlags{AllowCruise: true}, 0)
	for _, m := range moves {
		if m.SpeedMode == Cruise && m.MotorSteps != 0 {
			assert.LessOrEqual(t, m.MotorSteps, int32(0))
		}
	}
	assert.Less(t, moves.NetObsDistance(), 0.0)
}
