package geometry

import "math"

// Intersects reports whether two polygons overlap, including the
// edge-on-edge touching case: touching counts as colliding so that safety
// margins are preserved. When both polygons are
// convex, the Separating-Axis Theorem is used directly. Otherwise (the
// concave phi-arm polygon is the only such case in this module) an
// edge-intersection-plus-containment fallback is used.
func Intersects(a, b Polygon) bool {
	if a.Convex && b.Convex {
		return satIntersect(a, b)
	}
	return edgeFallbackIntersects(a, b)
}

type vector struct{ X, Y float64 }

func edgeNormals(p Polygon) []vector {
	n := len(p.Points)
	axes := make([]vector, 0, n)
	for i := 0; i < n; i++ {
		a := p.Points[i]
		b := p.Points[(i+1)%n]
		edge := vector{X: b.X - a.X, Y: b.Y - a.Y}
		normal := vector{X: -edge.Y, Y: edge.X}
		length := math.Hypot(normal.X, normal.Y)
		if length == 0 {
			continue
		}
		axes = append(axes, vector{X: normal.X / length, Y: normal.Y / length})
	}
	return axes
}

func project(p Polygon, axis vector) (min, max float64) {
	min = math.Inf(1)
	max = math.Inf(-1)
	for _, pt := range p.Points {
		d := pt.X*axis.X + pt.Y*axis.Y
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return
}

// satIntersect implements the Separating-Axis Theorem for two convex
// polygons. Touching (zero-gap) projections are treated as intersecting,
// keeping the safe margin.
func satIntersect(a, b Polygon) bool {
	if len(a.Points) < 2 || len(b.Points) < 2 {
		return false
	}
	for _, axis := range edgeNormals(a) {
		aMin, aMax := project(a, axis)
		bMin, bMax := project(b, axis)
		if aMax < bMin || bMax < aMin {
			return false
		}
	}
	for _, axis := range edgeNormals(b) {
		aMin, aMax := project(a, axis)
		bMin, bMax := project(b, axis)
		if aMax < bMin || bMax < aMin {
			return false
		}
	}
	return true
}

// edgeFallbackIntersects handles concave polygons: any pair of crossing (or
// touching/collinear-overlapping) edges means intersection; otherwise, full
// containment of one polygon inside the other also counts.
func edgeFallbackIntersects(a, b Polygon) bool {
	na, nb := len(a.Points), len(b.Points)
	if na < 2 || nb < 2 {
		return false
	}
	for i := 0; i < na; i++ {
		a1, a2 := a.Points[i], a.Points[(i+1)%na]
		for j := 0; j < nb; j++ {
			b1, b2 := b.Points[j], b.Points[(j+1)%nb]
			if segmentsIntersect(a1, a2, b1, b2) {
				return true
			}
		}
	}
	if na > 0 && PointInPolygon(a.Points[0], b) {
		return true
	}
	if nb > 0 && PointInPolygon(b.Points[0], a) {
		return true
	}
	return false
}

// PointInPolygon uses the standard ray-casting algorithm; points exactly on
// an edge are treated as inside (touching counts as colliding).
func PointInPolygon(pt Point, poly Polygon) bool {
	n := len(poly.Points)
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := poly.Points[i], poly.Points[j]
		if onSegment(pi, pj, pt) {
			return true
		}
		if (pi.Y > pt.Y) != (pj.Y > pt.Y) {
			xIntersect := (pj.X-pi.X)*(pt.Y-pi.Y)/(pj.Y-pi.Y) + pi.X
			if pt.X < xIntersect {
				inside = !inside
			}
		}
	}
	return inside
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

func onSegment(p, q, r Point) bool {
	const eps = 1e-12
	if math.Abs(cross(p, q, r)) > eps {
		return false
	}
	return r.X >= math.Min(p.X, q.X)-eps && r.X <= math.Max(p.X, q.X)+eps &&
		r.Y >= math.Min(p.Y, q.Y)-eps && r.Y <= math.Max(p.Y, q.Y)+eps
}

// segmentsIntersect reports whether segments p1p2 and q1q2 cross or touch
// (including collinear overlap), per the safe-margin touching-is-colliding
// design choice.
func segmentsIntersect(p1, p2, q1, q2 Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	if d1 == 0 && onSegment(q1, q2, p1) {
		return true
	}
	if d2 == 0 && onSegment(q1, q2, p2) {
		return true
	}
	if d3 == 0 && onSegment(p1, p2, q1) {
		return true
	}
	if d4 == 0 && onSegment(p1, p2, q2) {
		return true
	}
	return false
}
