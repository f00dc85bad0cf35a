package collider

import (
	"math"

	"github.com/desi-focalplane/fpanticoll/pkg/coords"
	"github.com/desi-focalplane/fpanticoll/pkg/geometry"
	"github.com/desi-focalplane/fpanticoll/pkg/positioner"
)

func cosDeg(deg float64) float64 { return math.Cos(deg * math.Pi / 180) }
func sinDeg(deg float64) float64 { return math.Sin(deg * math.Pi / 180) }

// Nominal keepout widths (mm), shared by every positioner absent a
// per-device override. DESI's real values live in the online database; this
// module has no such database, so these are reasonable stand-ins sized
// against a typical LengthR1/R2 ~= 3mm positioner. Link
// lengths themselves come from each positioner's own LengthR1/LengthR2.
const (
	centralBodyWidth = 3.0
	phiArmWidth      = 2.2
	ferruleSides     = 8
	ferruleRadius    = 0.75
)

// KeepoutSet holds the three local (unplaced) keepout polygon templates for
// one positioner, already expanded by its KeepoutExpansion* margins.
type KeepoutSet struct {
	CentralBody geometry.Polygon // spans theta axis to phi axis, length LengthR1, unrotated
	PhiArm      geometry.Polygon // spans phi axis to ferrule, length LengthR2, unrotated
	Ferrule     geometry.Polygon // centered at the arm tip, unrotated
}

// BuildKeepouts constructs the local keepout templates for a positioner
// from its calibration and keepout-expansion margins. The central body is
// the proximal link between the theta and phi axes (length LengthR1); the
// phi arm is the distal link carrying the ferrule (length LengthR2).
func BuildKeepouts(p *positioner.Positioner) KeepoutSet {
	central := geometry.Capsule(p.Calib.LengthR1, centralBodyWidth).Expand(p.KeepoutExpansionCentral)
	arm := geometry.Capsule(p.Calib.LengthR2, phiArmWidth).Expand(p.KeepoutExpansionArm)
	arm.Convex = false // the phi arm can fold back past its own base; treat as concave
	ferrule := geometry.RegularPolygon(ferruleSides, ferruleRadius).Expand(p.KeepoutExpansionFerrule)
	return KeepoutSet{CentralBody: central, PhiArm: arm, Ferrule: ferrule}
}

// PosedPolygons are a positioner's three keepout polygons placed at a given
// posintTP pose, in the petal's shared frame (coords.PoslocXYToObsXY
// applied to every vertex).
type PosedPolygons struct {
	CentralBody geometry.Polygon
	PhiArm      geometry.Polygon
	Ferrule     geometry.Polygon
}

// PoseAt places a positioner's keepout templates at the given posintTP
// pose. The pose is first converted to poslocTP (offsets removed); the
// central body is rotated by poslocT, the phi arm by poslocT+poslocP and
// translated to the elbow point, and the ferrule sits at the arm tip.
func PoseAt(p *positioner.Positioner, ks KeepoutSet, tp coords.TP) PosedPolygons {
	loc := coords.PosintToPosloc(tp, p.Calib)
	elbowLoc := coords.XY{X: p.Calib.LengthR1 * cosDeg(loc.T), Y: p.Calib.LengthR1 * sinDeg(loc.T)}

	toShared := func(xy coords.XY) coords.XY { return coords.PoslocXYToObsXY(xy, p.Calib) }
	originShared := toShared(coords.XY{})
	elbowShared := toShared(elbowLoc)

	central := ks.CentralBody.Rotate(loc.T).Translate(originShared.X, originShared.Y)
	arm := ks.PhiArm.Rotate(loc.T + loc.P).Translate(elbowShared.X, elbowShared.Y)

	tipXY := coords.PoslocTPToXY(loc, p.Calib)
	tipShared := toShared(tipXY)
	ferrule := ks.Ferrule.Translate(tipShared.X, tipShared.Y)

	return PosedPolygons{CentralBody: central, PhiArm: arm, Ferrule: ferrule}
}
