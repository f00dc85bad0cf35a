package collider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desi-focalplane/fpanticoll/pkg/coords"
	"github.com/desi-focalplane/fpanticoll/pkg/geometry"
	"github.com/desi-focalplane/fpanticoll/pkg/movetable"
	"github.com/desi-focalplane/fpanticoll/pkg/positioner"
)

func testCalib(offsetX, offsetY float64) coords.Calibration {
	return coords.Calibration{
		LengthR1: 3.0, LengthR2: 3.0,
		OffsetX: offsetX, OffsetY: offsetY,
		PhysicalRangeT:   [2]float64{-180, 180},
		PhysicalRangeP:   [2]float64{0, 180},
		TargetableRangeT: [2]float64{-175, 175},
		TargetableRangeP: [2]float64{1, 179},
		MinPatrol:        0,
		MaxPatrol:        6,
	}
}

func testPositioner(id string, offsetX, offsetY float64) *positioner.Positioner {
	return &positioner.Positioner{
		PosID:      id,
		DeviceLoc:  1,
		Calib:      testCalib(offsetX, offsetY),
		GearCalibT: 1, GearCalibP: 1,
		PosT: 0, PosP: 90,
	}
}

func TestBuildNeighbors_AdjacentPositionersAreNeighbors(t *testing.T) {
	c := New()
	a := testPositioner("M00001", 0, 0)
	b := testPositioner("M00002", 10, 0) // within reach 6+6=12
	far := testPositioner("M00003", 100, 0)
	c.AddPositioner(a)
	c.AddPositioner(b)
	c.AddPositioner(far)
	c.BuildNeighbors()

	assert.Contains(t, c.PosNeighbors("M00001"), "M00002")
	assert.NotContains(t, c.PosNeighbors("M00001"), "M00003")
}

func TestSpatialCollisionBetweenPositioners_OverlappingArmsCollide(t *testing.T) {
	c := New()
	a := testPositioner("M00001", 0, 0)
	b := testPositioner("M00002", 2, 0)
	c.AddPositioner(a)
	c.AddPositioner(b)

	// Both fully extended (phi=0) and pointed the same direction (+X): A's
	// arm spans x in [3,6], B's (offset 2mm over) spans x in [5,8] -- they
	// overlap in [5,6].
	cc, err := c.SpatialCollisionBetweenPositioners("M00001", coords.TP{T: 0, P: 0}, "M00002", coords.TP{T: 0, P: 0})
	require.NoError(t, err)
	assert.Equal(t, CaseArmArm, cc)
}

func TestSpatialCollisionBetweenPositioners_FoldedArmsDoNotCollide(t *testing.T) {
	c := New()
	a := testPositioner("M00001", 0, 0)
	b := testPositioner("M00002", 20, 0)
	c.AddPositioner(a)
	c.AddPositioner(b)

	cc, err := c.SpatialCollisionBetweenPositioners("M00001", coords.TP{T: 0, P: 179}, "M00002", coords.TP{T: 180, P: 179})
	require.NoError(t, err)
	assert.Equal(t, CaseNone, cc)
}

func TestSpatialCollisionBetweenPositioners_UnknownPositionerErrors(t *testing.T) {
	c := New()
	c.AddPositioner(testPositioner("M00001", 0, 0))
	_, err := c.SpatialCollisionBetweenPositioners("M00001", coords.TP{}, "bogus", coords.TP{})
	assert.ErrorIs(t, err, ErrUnknownPositioner)
}

func TestSpatialCollisionWithFixed_PTLIntersection(t *testing.T) {
	c := New()
	a := testPositioner("M00001", 0, 0)
	c.AddPositioner(a)
	c.SetFixed(geometry.Rect(2, 2).Translate(5, 0), geometry.Rect(0, 0), 6)

	cc, err := c.SpatialCollisionWithFixed("M00001", coords.TP{T: 0, P: 0})
	require.NoError(t, err)
	assert.Equal(t, CasePTL, cc)
}

func TestSpatialCollisionWithFixed_RetractedOnlyUsesCentralBody(t *testing.T) {
	c := New()
	a := testPositioner("M00001", 0, 0)
	a.ClassifiedAsRetracted = true
	c.AddPositioner(a)
	// PTL placed where the extended arm would be but beyond the central
	// body's reach -- a retracted positioner must not flag this.
	// No GFA here: a zero-size polygon at the origin would sit inside the
	// central body and count as touching.
	c.SetFixed(geometry.Rect(1, 1).Translate(5.6, 0), geometry.Polygon{}, 6)

	cc, err := c.SpatialCollisionWithFixed("M00001", coords.TP{T: 0, P: 0})
	require.NoError(t, err)
	assert.Equal(t, CaseNone, cc)
}

func TestSpacetimeCollisionBetweenPositioners_FindsEarliestOverlap(t *testing.T) {
	c := New()
	a := testPositioner("M00001", 0, 0)
	b := testPositioner("M00002", 2, 0)
	c.AddPositioner(a)
	c.AddPositioner(b)

	// A starts extended and pointing +Y, then rotates down toward B, which
	// sits extended along +X. They are clear at t=0 and overlap mid-sweep.
	rowsA := []movetable.ScheduleRow{{DT: -90, SpeedT: -18, Duration: 5}}
	rowsB := []movetable.ScheduleRow{{DT: 0, SpeedT: 0, Duration: 5}}

	sweep, err := c.SpacetimeCollisionBetweenPositioners(
		"M00001", coords.TP{T: 90, P: 0}, rowsA,
		"M00002", coords.TP{T: 0, P: 0}, rowsB,
	)
	require.NoError(t, err)
	assert.NotEqual(t, CaseNone, sweep.Case)
	assert.Greater(t, sweep.CollisionTime, 0.0)
	assert.Less(t, sweep.CollisionTime, 5.0)
}

func TestSpacetimeCollisionWithFixed_NoRowsMeansNoCollision(t *testing.T) {
	c := New()
	a := testPositioner("M00001", 0, 0)
	c.AddPositioner(a)
	c.SetFixed(geometry.Rect(1, 1).Translate(50, 0), geometry.Rect(0, 0), 6)

	sweep, err := c.SpacetimeCollisionWithFixed("M00001", coords.TP{T: 0, P: 90}, nil)
	require.NoError(t, err)
	assert.Equal(t, NoCollision, sweep)
}

func TestBuildFixedNeighbors_FlagsReachablePositioners(t *testing.T) {
	c := New()
	near := testPositioner("M00001", 0, 0)
	far := testPositioner("M00002", 1000, 1000)
	c.AddPositioner(near)
	c.AddPositioner(far)
	c.SetFixed(geometry.Rect(2, 2).Translate(4, 0), geometry.Rect(2, 2).Translate(0, 500), 6)
	c.BuildFixedNeighbors()

	assert.Contains(t, c.FixedNeighbors("M00001"), "PTL")
	assert.Empty(t, c.FixedNeighbors("M00002"))
}
