package scheduler

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desi-focalplane/fpanticoll/pkg/coords"
	"github.com/desi-focalplane/fpanticoll/pkg/geometry"
	"github.com/desi-focalplane/fpanticoll/pkg/movetable"
	"github.com/desi-focalplane/fpanticoll/pkg/positioner"
	"github.com/desi-focalplane/fpanticoll/pkg/transport"
)

type mapStore struct {
	m     map[string]*positioner.Positioner
	saved map[string][2]float64
}

func (s *mapStore) LoadAll() (map[string]*positioner.Positioner, error) { return s.m, nil }
func (s *mapStore) Save(posid string, posT, posP float64) error {
	s.saved[posid] = [2]float64{posT, posP}
	return nil
}

type fakeTransport struct {
	outcome transport.Outcome
	err     error
	got     []transport.HardwareTable
}

func (f *fakeTransport) SendAndSync(_ context.Context, tables []transport.HardwareTable) (transport.Outcome, error) {
	f.got = tables
	return f.outcome, f.err
}

func okTransport() *fakeTransport {
	return &fakeTransport{outcome: transport.Outcome{Kind: transport.OutcomeSuccess}}
}

func newTestPositioner(id string, loc int, ox, oy float64) *positioner.Positioner {
	return &positioner.Positioner{
		PosID:      id,
		BusID:      0,
		CanID:      uint32(1000 + loc),
		DeviceLoc:  loc,
		GearCalibT: 1.0,
		GearCalibP: 1.0,
		Calib: coords.Calibration{
			LengthR1:         3.0,
			LengthR2:         3.0,
			OffsetX:          ox,
			OffsetY:          oy,
			PhysicalRangeT:   [2]float64{-195, 195},
			PhysicalRangeP:   [2]float64{-5, 185},
			TargetableRangeT: [2]float64{-193.1, 193.1},
			TargetableRangeP: [2]float64{-3.1, 183.1},
			MinPatrol:        0,
			MaxPatrol:        6.0,
		},
		PosT:                 0,
		PosP:                 180,
		CreepPeriodMs:        2,
		SpinUpDownPeriod:     1,
		MinDistAtCruiseSpeed: 2.0,
		Backlash:             1.9,
		CtrlEnabled:          true,
	}
}

func newTestPetal(t *testing.T, mode AnticollisionMode, poss ...*positioner.Positioner) (*Petal, *mapStore) {
	t.Helper()
	st := &mapStore{m: make(map[string]*positioner.Positioner), saved: make(map[string][2]float64)}
	for _, p := range poss {
		st.m[p.PosID] = p
	}
	petal, err := NewPetal(zerolog.Nop(), st, mode, Options{})
	require.NoError(t, err)
	return petal, st
}

// Single positioner, reachable target: the table reaches the commanded
// poslocXY point and no collision events are logged.
func TestSchedule_SinglePositionerReachableTarget(t *testing.T) {
	pos := newTestPositioner("M00001", 1, 0, 0)
	pos.PosT, pos.PosP = 0, 150
	petal, st := newTestPetal(t, ModeAdjust, pos)

	require.NoError(t, petal.RequestTarget("M00001", CmdPoslocXY, 1.5, 1.5, ""))
	res, err := petal.ScheduleMoves()
	require.NoError(t, err)
	assert.Equal(t, []string{"M00001"}, res.Scheduled)
	assert.Empty(t, res.Frozen)
	assert.Zero(t, petal.Stats().FoundCount())

	tr := okTransport()
	exec, err := petal.SendAndExecuteMoves(context.Background(), tr)
	require.NoError(t, err)
	require.Len(t, tr.got, 1)
	assert.Equal(t, []string{"M00001"}, exec.Updated)

	got := coords.PoslocTPToXY(coords.PosintToPosloc(coords.TP{T: pos.PosT, P: pos.PosP}, pos.Calib), pos.Calib)
	assert.InDelta(t, 1.5, got.X, 5e-3)
	assert.InDelta(t, 1.5, got.Y, 5e-3)
	assert.Contains(t, st.saved, "M00001")
}

// twoNeighborSetup builds the crossing-arms scenario: A sweeps theta through
// B's sector while extended, B holds its arm pointed into A's patrol disc.
func twoNeighborSetup(t *testing.T, mode AnticollisionMode) (*Petal, *positioner.Positioner, *positioner.Positioner) {
	t.Helper()
	a := newTestPositioner("M00001", 1, 0, 0)
	a.PosT, a.PosP = 60, 90
	b := newTestPositioner("M00002", 2, 11.1, 0)
	b.PosT, b.PosP = 150, 60
	petal, _ := newTestPetal(t, mode, a, b)
	return petal, a, b
}

// Two neighbors with crossing paths: the collision is found and resolved by
// one of the adjustment methods, and both positioners reach their targets.
func TestSchedule_TwoNeighborsCrossingResolved(t *testing.T) {
	petal, _, _ := twoNeighborSetup(t, ModeAdjust)
	require.NoError(t, petal.RequestTarget("M00001", CmdPosintTP, -105, 90, ""))
	require.NoError(t, petal.RequestTarget("M00002", CmdDTdP, 0, 3, ""))

	res, err := petal.ScheduleMoves()
	require.NoError(t, err)
	assert.Empty(t, res.Frozen, "both positioners should reach their targets")
	assert.Equal(t, 1, petal.Stats().FoundCount())

	resolved := petal.Stats().MethodCount(methodRetract) +
		petal.Stats().MethodCount(methodDelay) +
		petal.Stats().MethodCount(methodReroute)
	assert.Equal(t, 1, resolved)

	// Safety: the committed schedule is collision-free end to end.
	assert.Empty(t, petal.findCollisions())
}

// Determinism: the identical batch on identical state yields identical
// hardware tables.
func TestSchedule_DeterministicRerun(t *testing.T) {
	run := func() []transport.HardwareTable {
		petal, _, _ := twoNeighborSetup(t, ModeAdjust)
		require.NoError(t, petal.RequestTarget("M00001", CmdPosintTP, -105, 90, ""))
		require.NoError(t, petal.RequestTarget("M00002", CmdDTdP, 0, 3, ""))
		_, err := petal.ScheduleMoves()
		require.NoError(t, err)
		tr := okTransport()
		_, err = petal.SendAndExecuteMoves(context.Background(), tr)
		require.NoError(t, err)
		return tr.got
	}
	assert.Equal(t, run(), run())
}

// Hardstop-targeting homing: large deltas with range clamping disabled, and
// cleanup leaves both axes at the hardstop angles.
func TestSchedule_HomingReachesHardstops(t *testing.T) {
	pos := newTestPositioner("M00001", 1, 0, 0)
	pos.PosT, pos.PosP = 10, 20
	petal, _ := newTestPetal(t, ModeAdjust, pos)

	require.NoError(t, petal.RequestHoming([]string{"M00001"}, HomingBoth))
	res, err := petal.ScheduleMoves()
	require.NoError(t, err)
	assert.Equal(t, []string{"M00001"}, res.Scheduled)

	mt := petal.MoveTable("M00001")
	require.NotNil(t, mt)
	assert.True(t, mt.AllowExceedLimits)
	dT, dP := mt.NetDistance()
	assert.Less(t, dT, -200.0, "theta homing must overshoot the full range")
	assert.Less(t, dP, -30.0, "phi homing must overshoot the full range")

	_, err = petal.SendAndExecuteMoves(context.Background(), okTransport())
	require.NoError(t, err)
	assert.Equal(t, pos.Calib.PhysicalRangeT[0], pos.PosT)
	assert.Equal(t, pos.Calib.PhysicalRangeP[0], pos.PosP)
}

// Infeasible target under Freeze: two positioners commanded to the same xy
// point; the lower posid wins, the other is frozen with a valid zero-motion
// table.
func TestSchedule_InfeasibleTargetUnderFreeze(t *testing.T) {
	a := newTestPositioner("M00001", 1, 0, 0)
	b := newTestPositioner("M00002", 2, 10.4, 0)
	b.PosT = 180
	petal, _ := newTestPetal(t, ModeFreeze, a, b)

	require.NoError(t, petal.RequestTarget("M00001", CmdObsXY, 5.0, 2.0, ""))
	require.NoError(t, petal.RequestTarget("M00002", CmdObsXY, 5.0, 2.0, ""))

	res, err := petal.ScheduleMoves()
	require.NoError(t, err)
	assert.Equal(t, []string{"M00002"}, res.Frozen)
	assert.Equal(t, []string{"M00002"}, res.NotReached)
	assert.ErrorIs(t, res.Errors["M00002"], ErrTargetInfeasible)

	require.NotNil(t, petal.MoveTable("M00001"))
	require.NotNil(t, petal.MoveTable("M00002"))
	assert.False(t, petal.MoveTable("M00001").IsZeroMotion())
	assert.True(t, petal.MoveTable("M00002").IsZeroMotion())
}

// Batch power-off: no positioner state is mutated and the outcome is the
// batch-level PowerOff error.
func TestExecute_BatchPowerOffMutatesNothing(t *testing.T) {
	pos := newTestPositioner("M00001", 1, 0, 0)
	pos.PosT, pos.PosP = 0, 150
	petal, st := newTestPetal(t, ModeAdjust, pos)

	require.NoError(t, petal.RequestTarget("M00001", CmdPoslocXY, 1.5, 1.5, ""))
	_, err := petal.ScheduleMoves()
	require.NoError(t, err)

	tr := &fakeTransport{outcome: transport.Outcome{
		Kind:             transport.OutcomeFailPowerOff,
		PowerOffSupplies: []string{"PS1"},
	}}
	_, err = petal.SendAndExecuteMoves(context.Background(), tr)
	require.ErrorIs(t, err, ErrPowerOff)
	assert.Equal(t, 0.0, pos.PosT)
	assert.Equal(t, 150.0, pos.PosP)
	assert.Empty(t, st.saved)
}

// Target idempotence: requesting the current pose yields a zero-motion
// table.
func TestSchedule_TargetIdempotence(t *testing.T) {
	pos := newTestPositioner("M00001", 1, 0, 0)
	pos.PosT, pos.PosP = 0, 150
	petal, _ := newTestPetal(t, ModeAdjust, pos)

	require.NoError(t, petal.RequestTarget("M00001", CmdPosintTP, 0, 150, ""))
	_, err := petal.ScheduleMoves()
	require.NoError(t, err)
	assert.True(t, petal.MoveTable("M00001").IsZeroMotion())
}

func TestRequest_UnreachableRejected(t *testing.T) {
	petal, _ := newTestPetal(t, ModeAdjust, newTestPositioner("M00001", 1, 0, 0))
	err := petal.RequestTarget("M00001", CmdPoslocXY, 10, 10, "")
	require.ErrorIs(t, err, ErrUnreachable)
	assert.Empty(t, petal.requests)
}

func TestRequest_OutOfRangeRejected(t *testing.T) {
	petal, _ := newTestPetal(t, ModeAdjust, newTestPositioner("M00001", 1, 0, 0))
	err := petal.RequestTarget("M00001", CmdPosintTP, 500, 90, "")
	require.ErrorIs(t, err, ErrOutOfRange)
}

func TestRequest_DuplicateRejected(t *testing.T) {
	petal, _ := newTestPetal(t, ModeAdjust, newTestPositioner("M00001", 1, 0, 0))
	require.NoError(t, petal.RequestTarget("M00001", CmdPosintTP, 10, 90, ""))
	err := petal.RequestTarget("M00001", CmdPosintTP, 20, 90, "")
	require.ErrorIs(t, err, ErrDuplicateRequest)
}

func TestRequest_MixedTypesRejectedOutsideFreeze(t *testing.T) {
	a := newTestPositioner("M00001", 1, 0, 0)
	b := newTestPositioner("M00002", 2, 20, 0)
	petal, _ := newTestPetal(t, ModeAdjust, a, b)

	require.NoError(t, petal.RequestDirectDTDP("M00001", 5, 0))
	err := petal.RequestTarget("M00002", CmdPosintTP, 10, 90, "")
	require.ErrorIs(t, err, ErrMixedRequestTypes)
}

func TestRequest_MixedTypesAllowedUnderFreeze(t *testing.T) {
	a := newTestPositioner("M00001", 1, 0, 0)
	b := newTestPositioner("M00002", 2, 20, 0)
	petal, _ := newTestPetal(t, ModeFreeze, a, b)

	require.NoError(t, petal.RequestDirectDTDP("M00001", 5, 0))
	require.NoError(t, petal.RequestTarget("M00002", CmdPosintTP, 10, 90, ""))
}

// Mode None: tables are produced without any collision checking, even for
// crossing paths.
func TestSchedule_ModeNoneSkipsChecks(t *testing.T) {
	petal, _, _ := twoNeighborSetup(t, ModeNone)
	require.NoError(t, petal.RequestTarget("M00001", CmdPosintTP, -105, 90, ""))
	require.NoError(t, petal.RequestTarget("M00002", CmdDTdP, 0, 3, ""))

	res, err := petal.ScheduleMoves()
	require.NoError(t, err)
	assert.Len(t, res.Scheduled, 2)
	assert.Zero(t, petal.Stats().FoundCount())
	assert.Zero(t, petal.Stats().AdjustIterations)
}

// Partial send: cleared positioners advance, unresponsive ones do not.
func TestExecute_PartialSend(t *testing.T) {
	a := newTestPositioner("M00001", 1, 0, 0)
	a.PosT, a.PosP = 0, 150
	b := newTestPositioner("M00002", 2, 20, 0)
	b.PosT, b.PosP = 0, 150
	petal, st := newTestPetal(t, ModeAdjust, a, b)

	require.NoError(t, petal.RequestTarget("M00001", CmdDTdP, 5, 0, ""))
	require.NoError(t, petal.RequestTarget("M00002", CmdDTdP, 5, 0, ""))
	_, err := petal.ScheduleMoves()
	require.NoError(t, err)

	tr := &fakeTransport{outcome: transport.Outcome{
		Kind: transport.OutcomePartialSend,
		PerPositioner: map[string]transport.PerPositionerStatus{
			"M00001": transport.StatusCleared,
			"M00002": transport.StatusNoResponse,
		},
	}}
	exec, err := petal.SendAndExecuteMoves(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, []string{"M00001"}, exec.Updated)
	assert.ErrorIs(t, exec.Errors["M00002"], ErrHardwareUnresponsive)
	assert.InDelta(t, 5, a.PosT, 1e-3)
	assert.Equal(t, 0.0, b.PosT)
	assert.Contains(t, st.saved, "M00001")
	assert.NotContains(t, st.saved, "M00002")
}

func TestPhase_Lifecycle(t *testing.T) {
	pos := newTestPositioner("M00001", 1, 0, 0)
	pos.PosT, pos.PosP = 0, 150
	petal, _ := newTestPetal(t, ModeAdjust, pos)

	assert.Equal(t, PhaseIdle, petal.Phase("M00001"))
	require.NoError(t, petal.RequestTarget("M00001", CmdDTdP, 5, 0, ""))
	assert.Equal(t, PhaseRequested, petal.Phase("M00001"))
	_, err := petal.ScheduleMoves()
	require.NoError(t, err)
	assert.Equal(t, PhaseScheduled, petal.Phase("M00001"))
	_, err = petal.SendAndExecuteMoves(context.Background(), okTransport())
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, petal.Phase("M00001"))
}

// A frozen positioner's stored angles survive execution untouched.
func TestSchedule_FreezeIsFixedPoint(t *testing.T) {
	a := newTestPositioner("M00001", 1, 0, 0)
	b := newTestPositioner("M00002", 2, 10.4, 0)
	b.PosT = 180
	petal, _ := newTestPetal(t, ModeFreeze, a, b)

	require.NoError(t, petal.RequestTarget("M00001", CmdObsXY, 5.0, 2.0, ""))
	require.NoError(t, petal.RequestTarget("M00002", CmdObsXY, 5.0, 2.0, ""))
	_, err := petal.ScheduleMoves()
	require.NoError(t, err)

	for _, row := range petal.MoveTable("M00002").HardwareView() {
		assert.Zero(t, row.MotorStepsT)
		assert.Zero(t, row.MotorStepsP)
	}

	before := coords.TP{T: b.PosT, P: b.PosP}
	_, err = petal.SendAndExecuteMoves(context.Background(), okTransport())
	require.NoError(t, err)
	assert.Equal(t, before.T, b.PosT)
	assert.Equal(t, before.P, b.PosP)
}

func TestResolve_RelativeCommandsChainOnExpectedState(t *testing.T) {
	pos := newTestPositioner("M00001", 1, 0, 0)
	pos.PosT, pos.PosP = 10, 90
	petal, _ := newTestPetal(t, ModeAdjust, pos)

	tp, err := petal.resolveTarget("M00001", CmdDTdP, 5, -5)
	require.NoError(t, err)
	assert.InDelta(t, 15, tp.T, 1e-12)
	assert.InDelta(t, 85, tp.P, 1e-12)
}

func TestResolve_ObsXYRoundTripsThroughKinematics(t *testing.T) {
	pos := newTestPositioner("M00001", 1, 2.5, -1.0)
	pos.PosT, pos.PosP = 0, 150
	petal, _ := newTestPetal(t, ModeAdjust, pos)

	tp, err := petal.resolveTarget("M00001", CmdObsXY, 2.5+1.5, -1.0+1.5)
	require.NoError(t, err)
	loc := coords.PosintToPosloc(tp, pos.Calib)
	xy := coords.PoslocTPToXY(loc, pos.Calib)
	assert.InDelta(t, 1.5, xy.X, 1e-9)
	assert.InDelta(t, 1.5, xy.Y, 1e-9)
}

func TestValidateHardwareView_RejectsOverlongRows(t *testing.T) {
	ok := []movetable.HardwareRow{{MotorStepsT: MaxMotorStepsPerRow}}
	assert.NoError(t, validateHardwareView("M00001", ok))

	bad := []movetable.HardwareRow{{MotorStepsT: MaxMotorStepsPerRow + 1}}
	assert.Error(t, validateHardwareView("M00001", bad))
}

// The simultaneity series is recorded for a successful schedule.
func TestSchedule_RecordsSimultaneity(t *testing.T) {
	pos := newTestPositioner("M00001", 1, 0, 0)
	pos.PosT, pos.PosP = 0, 150
	petal, _ := newTestPetal(t, ModeAdjust, pos)

	require.NoError(t, petal.RequestTarget("M00001", CmdDTdP, 45, 0, ""))
	_, err := petal.ScheduleMoves()
	require.NoError(t, err)
	assert.NotEmpty(t, petal.Stats().Simultaneity)
	assert.Equal(t, 1, petal.Stats().Simultaneity[0])
}

// Unwrapped angles: a schedule never leaves a positioner outside its
// physical range even when homing overshoots.
func TestCleanup_ClampsToPhysicalRange(t *testing.T) {
	pos := newTestPositioner("M00001", 1, 0, 0)
	pos.PosT, pos.PosP = -190, 0
	petal, _ := newTestPetal(t, ModeAdjust, pos)

	require.NoError(t, petal.RequestHoming([]string{"M00001"}, HomingTheta))
	_, err := petal.ScheduleMoves()
	require.NoError(t, err)
	_, err = petal.SendAndExecuteMoves(context.Background(), okTransport())
	require.NoError(t, err)
	assert.False(t, math.IsNaN(pos.PosT))
	assert.GreaterOrEqual(t, pos.PosT, pos.Calib.PhysicalRangeT[0])
}

func TestDiscard_DropsTablesWithoutMutation(t *testing.T) {
	pos := newTestPositioner("M00001", 1, 0, 0)
	pos.PosT, pos.PosP = 0, 150
	petal, st := newTestPetal(t, ModeAdjust, pos)

	require.NoError(t, petal.RequestTarget("M00001", CmdDTdP, 5, 0, ""))
	_, err := petal.ScheduleMoves()
	require.NoError(t, err)
	petal.Discard()
	assert.Nil(t, petal.MoveTable("M00001"))
	assert.Equal(t, 0.0, pos.PosT)
	assert.Empty(t, st.saved)
}

type sinkFunc struct {
	items map[string]int
}

func (s *sinkFunc) Add(itemKey string, _ float64, _ []geometry.Point, _ string) {
	if s.items == nil {
		s.items = make(map[string]int)
	}
	s.items[itemKey]++
}

func TestEmitSnapshots_CoversWholeMove(t *testing.T) {
	pos := newTestPositioner("M00001", 1, 0, 0)
	pos.PosT, pos.PosP = 0, 150
	petal, _ := newTestPetal(t, ModeAdjust, pos)

	require.NoError(t, petal.RequestTarget("M00001", CmdDTdP, 30, 0, ""))
	_, err := petal.ScheduleMoves()
	require.NoError(t, err)

	sink := &sinkFunc{}
	petal.EmitSnapshots(sink, 0.5)
	assert.Greater(t, sink.items["M00001.body"], 1)
	assert.Equal(t, sink.items["M00001.body"], sink.items["M00001.arm"])
	assert.Equal(t, sink.items["M00001.body"], sink.items["M00001.ferrule"])
}
