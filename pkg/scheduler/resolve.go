package scheduler

import (
	"errors"
	"fmt"
	"math"

	"github.com/desi-focalplane/fpanticoll/pkg/coords"
)

// resolveTarget turns one command plus its two scalar arguments into an
// absolute posintTP target for posid. Relative commands (dTdP, dQdS,
// obsdXdY, poslocdXdY) are taken against the positioner's expected current
// posintTP, which tracks prior requests in this schedule rather than the
// real hardware.
func (p *Petal) resolveTarget(posid string, cmd CommandKind, v1, v2 float64) (coords.TP, error) {
	pos := p.positioners[posid]
	if pos == nil {
		return coords.TP{}, fmt.Errorf("scheduler: unknown positioner %q", posid)
	}
	calib := pos.Calib
	expected := p.expectedCurrentTP(posid)

	switch cmd {
	case CmdPosintTP:
		return p.checkRange(posid, coords.TP{T: v1, P: v2})

	case CmdPoslocTP:
		return p.checkRange(posid, coords.PoslocToPosint(coords.TP{T: v1, P: v2}, calib))

	case CmdDTdP:
		return p.checkRange(posid, coords.TP{T: expected.T + v1, P: expected.P + v2})

	case CmdPoslocXY:
		return p.fromPoslocXY(posid, coords.XY{X: v1, Y: v2})

	case CmdObsXY:
		return p.fromPoslocXY(posid, coords.ObsXYToPoslocXY(coords.XY{X: v1, Y: v2}, calib))

	case CmdPtlXY:
		obs := coords.PtlXYToObsXY(coords.XY{X: v1, Y: v2}, p.petalTransform)
		return p.fromPoslocXY(posid, coords.ObsXYToPoslocXY(obs, calib))

	case CmdQS:
		if p.radialLookup == nil {
			return coords.TP{}, errors.New("scheduler: QS command requires a radial lookup table")
		}
		obs, err := coords.QSToObsXY(coords.QS{Q: v1, S: v2}, p.radialLookup)
		if err != nil {
			return coords.TP{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		return p.fromPoslocXY(posid, coords.ObsXYToPoslocXY(obs, calib))

	case CmdPoslocdXdY:
		cur := coords.PoslocTPToXY(coords.PosintToPosloc(expected, calib), calib)
		return p.fromPoslocXY(posid, coords.XY{X: cur.X + v1, Y: cur.Y + v2})

	case CmdObsdXdY:
		curLoc := coords.PoslocTPToXY(coords.PosintToPosloc(expected, calib), calib)
		cur := coords.PoslocXYToObsXY(curLoc, calib)
		moved := coords.XY{X: cur.X + v1, Y: cur.Y + v2}
		return p.fromPoslocXY(posid, coords.ObsXYToPoslocXY(moved, calib))

	case CmdDQdS:
		if p.radialLookup == nil {
			return coords.TP{}, errors.New("scheduler: dQdS command requires a radial lookup table")
		}
		curLoc := coords.PoslocTPToXY(coords.PosintToPosloc(expected, calib), calib)
		curObs := coords.PoslocXYToObsXY(curLoc, calib)
		curQS, err := coords.ObsXYToQS(curObs, p.radialLookup)
		if err != nil {
			return coords.TP{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		obs, err := coords.QSToObsXY(coords.QS{Q: curQS.Q + v1, S: curQS.S + v2}, p.radialLookup)
		if err != nil {
			return coords.TP{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		return p.fromPoslocXY(posid, coords.ObsXYToPoslocXY(obs, calib))

	default:
		return coords.TP{}, fmt.Errorf("scheduler: unknown command %v", cmd)
	}
}

// fromPoslocXY runs the inverse kinematics chain for any command that
// bottoms out in a poslocXY point, distinguishing the two failure kinds:
// outside the patrol annulus (Unreachable) versus inside the annulus but
// with no admissible theta branch (OutOfRange).
func (p *Petal) fromPoslocXY(posid string, xy coords.XY) (coords.TP, error) {
	pos := p.positioners[posid]
	calib := pos.Calib
	r := math.Hypot(xy.X, xy.Y)
	if r < calib.MinPatrol || r > calib.MaxPatrol {
		return coords.TP{}, fmt.Errorf("%w: r=%.4f outside [%.4f, %.4f]", ErrUnreachable, r, calib.MinPatrol, calib.MaxPatrol)
	}
	curLocT := p.expectedCurrentTP(posid).T - calib.OffsetT
	loc, err := coords.XYToPoslocTP(xy, calib, curLocT, coords.Targetable)
	if err != nil {
		return coords.TP{}, fmt.Errorf("%w: no admissible theta branch for (%.4f, %.4f)", ErrOutOfRange, xy.X, xy.Y)
	}
	return coords.PoslocToPosint(loc, calib), nil
}

// checkRange verifies an absolute posintTP target sits inside the
// targetable range on both axes.
func (p *Petal) checkRange(posid string, tp coords.TP) (coords.TP, error) {
	pos := p.positioners[posid]
	rT := pos.TargetableRangeT()
	rP := pos.TargetableRangeP()
	if tp.T < rT[0] || tp.T > rT[1] {
		return coords.TP{}, fmt.Errorf("%w: theta=%.4f outside [%.4f, %.4f]", ErrOutOfRange, tp.T, rT[0], rT[1])
	}
	if tp.P < rP[0] || tp.P > rP[1] {
		return coords.TP{}, fmt.Errorf("%w: phi=%.4f outside [%.4f, %.4f]", ErrOutOfRange, tp.P, rP[0], rP[1])
	}
	return tp, nil
}
