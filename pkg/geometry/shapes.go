package geometry

import "math"

// Rect builds an axis-aligned rectangular polygon centered at the origin.
// The central-body and phi-arm keepouts are built from Capsule, not Rect.
func Rect(width, height float64) Polygon {
	hw, hh := width/2, height/2
	return Polygon{
		Points: []Point{
			{X: -hw, Y: -hh},
			{X: hw, Y: -hh},
			{X: hw, Y: hh},
			{X: -hw, Y: hh},
		},
		Convex: true,
	}
}

// Capsule approximates a link-shaped keepout (a stadium spanning from the
// origin to (length,0), of the given width, with semicircular end caps) as
// a convex octagon so SAT applies without the curvature a true capsule
// needs. Each cap is the half of an octagon circumscribed about its
// semicircle, so the polygon fully contains the true capsule and never
// under-covers at the joints.
func Capsule(length, width float64) Polygon {
	hw := width / 2
	k := hw * (math.Sqrt2 - 1) // tan(22.5°)·hw, the circumscribed-octagon chamfer
	return Polygon{
		Points: []Point{
			{X: -k, Y: -hw},
			{X: length + k, Y: -hw},
			{X: length + hw, Y: -k},
			{X: length + hw, Y: k},
			{X: length + k, Y: hw},
			{X: -k, Y: hw},
			{X: -hw, Y: k},
			{X: -hw, Y: -k},
		},
		Convex: true,
	}
}

// RegularPolygon returns a regular n-gon of the given circumradius, used to
// approximate circular keepouts (the ferrule) with a shape SAT can test
// directly.
func RegularPolygon(sides int, radius float64) Polygon {
	if sides < 3 {
		sides = 3
	}
	pts := make([]Point, sides)
	for i := 0; i < sides; i++ {
		a := 2 * math.Pi * float64(i) / float64(sides)
		pts[i] = Point{X: radius * math.Cos(a), Y: radius * math.Sin(a)}
	}
	return Polygon{Points: pts, Convex: true}
}
