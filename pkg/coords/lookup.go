package coords

import (
	"errors"
	"math"
	"sort"
)

// ErrLookupRange is returned when a radius or arc-length lookup falls
// outside the table's sampled domain.
var ErrLookupRange = errors.New("coords: value outside lookup table domain")

// RadialLookup is a monotonic sampled mapping between radial distance from
// the optical axis (R, mm) and arc length along the aspheric focal surface
// (S, mm), used by ObsXYToQS/QSToObsXY. Samples must be sorted by R
// ascending; S is assumed monotonic non-decreasing with R, as the physical
// aspheric surface guarantees.
type RadialLookup struct {
	R []float64
	S []float64
}

// NewRadialLookup validates and returns a lookup table built from paired
// (r,s) samples sorted by r.
func NewRadialLookup(r, s []float64) (*RadialLookup, error) {
	if len(r) != len(s) || len(r) < 2 {
		return nil, errors.New("coords: lookup table needs >=2 paired samples")
	}
	if !sort.Float64sAreSorted(r) {
		return nil, errors.New("coords: lookup table R samples must be sorted ascending")
	}
	return &RadialLookup{R: r, S: s}, nil
}

// R2S interpolates S for a given R.
func (l *RadialLookup) R2S(r float64) (float64, error) {
	return interp(l.R, l.S, r)
}

// S2R interpolates R for a given S.
func (l *RadialLookup) S2R(s float64) (float64, error) {
	return interp(l.S, l.R, s)
}

func interp(xs, ys []float64, x float64) (float64, error) {
	n := len(xs)
	if x < xs[0] || x > xs[n-1] {
		return 0, ErrLookupRange
	}
	i := sort.SearchFloat64s(xs, x)
	if i < n && xs[i] == x {
		return ys[i], nil
	}
	// i is the first index with xs[i] > x; interpolate between i-1 and i.
	lo, hi := i-1, i
	frac := (x - xs[lo]) / (xs[hi] - xs[lo])
	return ys[lo] + frac*(ys[hi]-ys[lo]), nil
}

// ObsXYToQS converts global focal-plate cartesian coordinates to the
// focal-surface intrinsic (Q,S) frame using the radial lookup table.
func ObsXYToQS(xy XY, lut *RadialLookup) (QS, error) {
	r := math.Hypot(xy.X, xy.Y)
	s, err := lut.R2S(r)
	if err != nil {
		return QS{}, err
	}
	q := math.Atan2(xy.Y, xy.X) * rad2deg
	return QS{Q: q, S: s}, nil
}

// QSToObsXY inverts ObsXYToQS.
func QSToObsXY(qs QS, lut *RadialLookup) (XY, error) {
	r, err := lut.S2R(qs.S)
	if err != nil {
		return XY{}, err
	}
	q := qs.Q * deg2rad
	return XY{X: r * math.Cos(q), Y: r * math.Sin(q)}, nil
}
