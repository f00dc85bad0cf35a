package collider

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/desi-focalplane/fpanticoll/pkg/coords"
	"github.com/desi-focalplane/fpanticoll/pkg/geometry"
	"github.com/desi-focalplane/fpanticoll/pkg/movetable"
	"github.com/desi-focalplane/fpanticoll/pkg/positioner"
)

// DefaultSamplePeriodDivisor is the default value of Collider.SamplePeriodDivisor.
const DefaultSamplePeriodDivisor = 8

// ErrUnknownPositioner is returned when a query names a PosID the collider
// was never told about via AddPositioner.
var ErrUnknownPositioner = errors.New("collider: unknown positioner")

// entry bundles a positioner with its precomputed local keepout templates.
type entry struct {
	pos *positioner.Positioner
	ks  KeepoutSet
}

// Collider holds the per-petal keepout geometry: each
// positioner's local keepout polygons, the fixed PTL/GFA obstacles, and the
// precomputed neighbor maps a scheduler uses to avoid an O(n^2) sweep over
// every pair on every adjustment iteration.
type Collider struct {
	positioners map[string]*entry

	PTL geometry.Polygon
	GFA geometry.Polygon

	// EoRadius is the maximum ferrule excursion envelope radius (mm), the
	// reach distance within which a positioner can threaten a fixed
	// obstacle.
	EoRadius float64

	posNeighbors   map[string][]string
	fixedNeighbors map[string][]string

	// SamplePeriodDivisor controls spacetime sweep resolution; see
	// samplePeriod in sweep.go. Zero means DefaultSamplePeriodDivisor.
	SamplePeriodDivisor int
}

// New returns an empty Collider ready for AddPositioner calls.
func New() *Collider {
	return &Collider{
		positioners:         make(map[string]*entry),
		posNeighbors:        make(map[string][]string),
		fixedNeighbors:      make(map[string][]string),
		SamplePeriodDivisor: DefaultSamplePeriodDivisor,
	}
}

// AddPositioner registers a positioner and builds its local keepout
// templates.
func (c *Collider) AddPositioner(p *positioner.Positioner) {
	c.positioners[p.PosID] = &entry{pos: p, ks: BuildKeepouts(p)}
}

// SetFixed installs the fixed PTL and GFA keepout polygons, in the same
// shared petal frame as positioner keepout polygons.
func (c *Collider) SetFixed(ptl, gfa geometry.Polygon, eoRadius float64) {
	c.PTL = ptl
	c.GFA = gfa
	c.EoRadius = eoRadius
}

// BuildNeighbors precomputes pos_neighbors: for every pair of
// positioners whose patrol discs (centered at their OFFSET, radius
// LengthR1+LengthR2) can physically reach each other, record each as the
// other's neighbor. On a standard hexagonal grid this yields up to 6
// neighbors per slot.
func (c *Collider) BuildNeighbors() {
	ids := c.sortedIDs()
	for _, a := range ids {
		c.posNeighbors[a] = nil
	}
	for i, a := range ids {
		ea := c.positioners[a]
		da := ea.pos.Calib.LengthR1 + ea.pos.Calib.LengthR2
		for _, b := range ids[i+1:] {
			eb := c.positioners[b]
			db := eb.pos.Calib.LengthR1 + eb.pos.Calib.LengthR2
			dist := math.Hypot(ea.pos.Calib.OffsetX-eb.pos.Calib.OffsetX, ea.pos.Calib.OffsetY-eb.pos.Calib.OffsetY)
			if dist <= da+db {
				c.posNeighbors[a] = append(c.posNeighbors[a], b)
				c.posNeighbors[b] = append(c.posNeighbors[b], a)
			}
		}
	}
}

// BuildFixedNeighbors precomputes fixed_neighbors: positioners
// whose patrol disc can reach close enough to PTL or GFA to matter.
func (c *Collider) BuildFixedNeighbors() {
	for id, e := range c.positioners {
		reach := e.pos.Calib.LengthR1 + e.pos.Calib.LengthR2
		center := geometry.Point{X: e.pos.Calib.OffsetX, Y: e.pos.Calib.OffsetY}
		disc := geometry.Circle{Center: center, Radius: reach}
		var near []string
		if polygonNearCircle(c.PTL, disc) {
			near = append(near, "PTL")
		}
		if polygonNearCircle(c.GFA, disc) {
			near = append(near, "GFA")
		}
		if len(near) > 0 {
			c.fixedNeighbors[id] = near
		}
	}
}

// PosNeighbors returns the precomputed neighbor list for posid.
func (c *Collider) PosNeighbors(posid string) []string { return c.posNeighbors[posid] }

// FixedNeighbors returns which of "PTL"/"GFA" posid's patrol disc can reach.
func (c *Collider) FixedNeighbors(posid string) []string { return c.fixedNeighbors[posid] }

func (c *Collider) sortedIDs() []string {
	ids := make([]string, 0, len(c.positioners))
	for id := range c.positioners {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// polygonNearCircle is a coarse check that only gates which pairs get the
// expensive exact test: true if any vertex of poly lies within the circle's
// radius of its center. An edge that crosses the disc with both of its
// vertices outside it is not detected.
func polygonNearCircle(poly geometry.Polygon, disc geometry.Circle) bool {
	for _, v := range poly.Points {
		if math.Hypot(v.X-disc.Center.X, v.Y-disc.Center.Y) <= disc.Radius {
			return true
		}
	}
	return false
}

func (c *Collider) lookup(posid string) (*entry, error) {
	e, ok := c.positioners[posid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPositioner, posid)
	}
	return e, nil
}

// PoseOf places posid's keepout templates at the given posintTP pose, for
// consumers outside the collision loop (the animator).
func (c *Collider) PoseOf(posid string, tp coords.TP) (PosedPolygons, error) {
	e, err := c.lookup(posid)
	if err != nil {
		return PosedPolygons{}, err
	}
	return PoseAt(e.pos, e.ks, tp), nil
}

// SpatialCollisionWithFixed tests one positioner's arm+ferrule polygons at a
// static pose against each fixed obstacle. Returns CaseNone
// on no intersection, otherwise the obstacle tag.
func (c *Collider) SpatialCollisionWithFixed(posid string, tp coords.TP) (CollisionCase, error) {
	e, err := c.lookup(posid)
	if err != nil {
		return CaseNone, err
	}
	posed := PoseAt(e.pos, e.ks, tp)
	if e.pos.ClassifiedAsRetracted {
		// Retracted positioners only threaten fixed obstacles via their
		// central body; the arm and ferrule are assumed stowed.
		if geometry.Intersects(posed.CentralBody, c.GFA) {
			return CaseGFA, nil
		}
		if geometry.Intersects(posed.CentralBody, c.PTL) {
			return CasePTL, nil
		}
		return CaseNone, nil
	}
	if geometry.Intersects(posed.PhiArm, c.GFA) || geometry.Intersects(posed.Ferrule, c.GFA) {
		return CaseGFA, nil
	}
	if geometry.Intersects(posed.PhiArm, c.PTL) || geometry.Intersects(posed.Ferrule, c.PTL) {
		return CasePTL, nil
	}
	return CaseNone, nil
}

// SpatialCollisionBetweenPositioners tests A's phi-arm polygon against B's
// phi-arm polygon (CaseArmArm), B's central body (CaseArmBodyA), and
// symmetrically A's central body against B's arm (CaseArmBodyB). A
// positioner classified as retracted contributes only its central body.
// Returns CaseNone on no intersection.
func (c *Collider) SpatialCollisionBetweenPositioners(aID string, tpA coords.TP, bID string, tpB coords.TP) (CollisionCase, error) {
	ea, err := c.lookup(aID)
	if err != nil {
		return CaseNone, err
	}
	eb, err := c.lookup(bID)
	if err != nil {
		return CaseNone, err
	}
	posedA := PoseAt(ea.pos, ea.ks, tpA)
	posedB := PoseAt(eb.pos, eb.ks, tpB)
	if ea.pos.ClassifiedAsRetracted {
		posedA.PhiArm, posedA.Ferrule = geometry.Polygon{}, geometry.Polygon{}
	}
	if eb.pos.ClassifiedAsRetracted {
		posedB.PhiArm, posedB.Ferrule = geometry.Polygon{}, geometry.Polygon{}
	}

	if geometry.Intersects(posedA.PhiArm, posedB.PhiArm) || geometry.Intersects(posedA.Ferrule, posedB.Ferrule) ||
		geometry.Intersects(posedA.PhiArm, posedB.Ferrule) || geometry.Intersects(posedA.Ferrule, posedB.PhiArm) {
		return CaseArmArm, nil
	}
	if geometry.Intersects(posedA.PhiArm, posedB.CentralBody) || geometry.Intersects(posedA.Ferrule, posedB.CentralBody) {
		return CaseArmBodyA, nil
	}
	if geometry.Intersects(posedB.PhiArm, posedA.CentralBody) || geometry.Intersects(posedB.Ferrule, posedA.CentralBody) {
		return CaseArmBodyB, nil
	}
	return CaseNone, nil
}

// SpacetimeCollisionWithFixed samples a positioner's schedule view from pose
// tp0 against the fixed obstacles, returning the earliest sample time a
// collision was found.
func (c *Collider) SpacetimeCollisionWithFixed(posid string, tp0 coords.TP, rows []movetable.ScheduleRow) (Sweep, error) {
	if _, err := c.lookup(posid); err != nil {
		return NoCollision, err
	}
	traj := buildTrajectory(tp0, rows)
	period := c.samplePeriod(rows)
	for _, tm := range sampleTimes(traj.total, period) {
		cc, err := c.SpatialCollisionWithFixed(posid, traj.at(tm))
		if err != nil {
			return NoCollision, err
		}
		if cc != CaseNone {
			return Sweep{CollisionTime: tm, Case: cc}, nil
		}
	}
	return NoCollision, nil
}

// SpacetimeCollisionBetweenPositioners samples both positioners' schedule
// views (which may run for different total durations and need not share a
// sample period) against each other on one common time grid at the finer of
// the two sample periods, returning the earliest colliding sample time.
func (c *Collider) SpacetimeCollisionBetweenPositioners(
	aID string, tp0A coords.TP, rowsA []movetable.ScheduleRow,
	bID string, tp0B coords.TP, rowsB []movetable.ScheduleRow,
) (Sweep, error) {
	if _, err := c.lookup(aID); err != nil {
		return NoCollision, err
	}
	if _, err := c.lookup(bID); err != nil {
		return NoCollision, err
	}
	trajA := buildTrajectory(tp0A, rowsA)
	trajB := buildTrajectory(tp0B, rowsB)

	periodA := c.samplePeriod(rowsA)
	periodB := c.samplePeriod(rowsB)
	period := periodA
	if periodB < period {
		period = periodB
	}
	total := math.Max(trajA.total, trajB.total)

	for _, tm := range sampleTimes(total, period) {
		cc, err := c.SpatialCollisionBetweenPositioners(aID, trajA.at(tm), bID, trajB.at(tm))
		if err != nil {
			return NoCollision, err
		}
		if cc != CaseNone {
			return Sweep{CollisionTime: tm, Case: cc}, nil
		}
	}
	return NoCollision, nil
}

