package coords

import "math"

const deg2rad = math.Pi / 180.0
const rad2deg = 180.0 / math.Pi

// PosintToPosloc subtracts the per-axis offset.
func PosintToPosloc(tp TP, c Calibration) TP {
	return TP{T: tp.T - c.OffsetT, P: tp.P - c.OffsetP}
}

// PoslocToPosint adds the per-axis offset back.
func PoslocToPosint(tp TP, c Calibration) TP {
	return TP{T: tp.T + c.OffsetT, P: tp.P + c.OffsetP}
}

// PoslocTPToXY performs 2R planar forward kinematics: the positioner's two
// rigid links, arm lengths R1 and R2, phi measured relative to the theta
// link (standard elbow convention).
func PoslocTPToXY(tp TP, c Calibration) XY {
	t := tp.T * deg2rad
	tp2 := (tp.T + tp.P) * deg2rad
	return XY{
		X: c.LengthR1*math.Cos(t) + c.LengthR2*math.Cos(tp2),
		Y: c.LengthR1*math.Sin(t) + c.LengthR2*math.Sin(tp2),
	}
}

// XYToPoslocTP performs 2R planar inverse kinematics. Two elbow branches
// generally solve a given (x,y); when both lie within the selected range
// (rangeLimits), the branch closest to curT (modulo full turns) is chosen.
// Returns ErrOutOfReach if the point lies outside the patrol annulus. If
// neither branch lies within the selected range, it returns the branch
// nearer curT together with ErrOutOfReach.
func XYToPoslocTP(xy XY, c Calibration, curT float64, rangeLimits RangeLimits) (TP, error) {
	r := math.Hypot(xy.X, xy.Y)
	if r < c.MinPatrol || r > c.MaxPatrol {
		return TP{}, ErrOutOfReach
	}

	r1, r2 := c.LengthR1, c.LengthR2
	cosP := (r*r - r1*r1 - r2*r2) / (2 * r1 * r2)
	cosP = math.Max(-1, math.Min(1, cosP))
	pMag := math.Acos(cosP) * rad2deg

	rangeT, rangeP := c.PhysicalRangeT, c.PhysicalRangeP
	if rangeLimits == Targetable {
		rangeT, rangeP = c.TargetableRangeT, c.TargetableRangeP
	}

	type candidate struct {
		tp  TP
		ok  bool
		dev float64 // angular distance from curT, for tie-break
	}

	build := func(pSign float64) candidate {
		p := pSign * pMag
		pr := p * deg2rad
		t := math.Atan2(xy.Y, xy.X) - math.Atan2(r2*math.Sin(pr), r1+r2*math.Cos(pr))
		tDeg := t * rad2deg

		// Wrap tDeg to the representative nearest curT, then to within range
		// by shifting full turns before admissibility is checked. The axis
		// is unwrapped; the range is an explicit interval on it.
		tDeg = nearestEquivalent(tDeg, curT)
		for tDeg < rangeT[0] && tDeg+360 <= rangeT[1] {
			tDeg += 360
		}
		for tDeg > rangeT[1] && tDeg-360 >= rangeT[0] {
			tDeg -= 360
		}

		ok := tDeg >= rangeT[0] && tDeg <= rangeT[1] && p >= rangeP[0] && p <= rangeP[1]
		return candidate{tp: TP{T: tDeg, P: p}, ok: ok, dev: math.Abs(shortestDelta(tDeg, curT))}
	}

	up := build(1)
	down := build(-1)

	switch {
	case up.ok && down.ok:
		if up.dev <= down.dev {
			return up.tp, nil
		}
		return down.tp, nil
	case up.ok:
		return up.tp, nil
	case down.ok:
		return down.tp, nil
	default:
		// Neither branch lands inside range; report the closer one so the
		// caller's OutOfRange diagnostics have something concrete, but the
		// caller is expected to treat this as infeasible.
		if up.dev <= down.dev {
			return up.tp, ErrOutOfReach
		}
		return down.tp, ErrOutOfReach
	}
}

// PoslocXYToObsXY adds the device's cartesian offset.
func PoslocXYToObsXY(xy XY, c Calibration) XY {
	return XY{X: xy.X + c.OffsetX, Y: xy.Y + c.OffsetY}
}

// ObsXYToPoslocXY subtracts the device's cartesian offset.
func ObsXYToPoslocXY(xy XY, c Calibration) XY {
	return XY{X: xy.X - c.OffsetX, Y: xy.Y - c.OffsetY}
}

// ObsXYToPtlXY applies the petal's rigid rotation+translation.
func ObsXYToPtlXY(xy XY, t PetalTransform) XY {
	a := t.RotationDeg * deg2rad
	ca, sa := math.Cos(a), math.Sin(a)
	return XY{
		X: xy.X*ca - xy.Y*sa + t.TranslateX,
		Y: xy.X*sa + xy.Y*ca + t.TranslateY,
	}
}

// PtlXYToObsXY inverts ObsXYToPtlXY.
func PtlXYToObsXY(xy XY, t PetalTransform) XY {
	x := xy.X - t.TranslateX
	y := xy.Y - t.TranslateY
	a := -t.RotationDeg * deg2rad
	ca, sa := math.Cos(a), math.Sin(a)
	return XY{
		X: x*ca - y*sa,
		Y: x*sa + y*ca,
	}
}

// DeltaPosintTP computes the shortest signed angular delta per axis between
// target and start. When target lies outside the targetable range by whole
// turns, the delta wraps by 360° increments until the resulting absolute
// target is admissible, preferring the smallest number of turns.
func DeltaPosintTP(target, start TP, rangeT, rangeP [2]float64) TP {
	return TP{
		T: wrappedDelta(target.T, start.T, rangeT),
		P: wrappedDelta(target.P, start.P, rangeP),
	}
}

func wrappedDelta(target, start float64, rng [2]float64) float64 {
	t := nearestEquivalent(target, start)
	for t < rng[0] && t+360 <= rng[1] {
		t += 360
	}
	for t > rng[1] && t-360 >= rng[0] {
		t -= 360
	}
	return t - start
}

// nearestEquivalent returns the representative of `angle` (mod 360) that is
// closest to `reference` on the real line.
func nearestEquivalent(angle, reference float64) float64 {
	delta := shortestDelta(angle, reference)
	return reference + delta
}

// shortestDelta returns the signed delta in (-180,180] taking `from` to an
// angle congruent to `to` modulo 360.
func shortestDelta(to, from float64) float64 {
	d := math.Mod(to-from, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}
