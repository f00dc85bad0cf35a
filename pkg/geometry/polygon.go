// Package geometry implements the 2D polygon primitives and intersection
// tests the collider needs: convex Separating-Axis-Theorem (SAT) testing
// plus an edge-intersection fallback for the concave phi-arm polygon.
package geometry

import "math"

// Point is a 2D point (mm, in whatever frame the caller is working in --
// typically poslocXY for keepout polygons).
type Point struct {
	X, Y float64
}

// Polygon is an ordered list of vertices. Vertices may describe a convex or
// concave shape; Intersects below dispatches accordingly.
type Polygon struct {
	Points []Point
	// Convex records whether Points forms a convex polygon, set by the
	// constructor that built it. SAT alone is valid only for convex
	// polygons; concave polygons (the phi arm) additionally need the
	// edge-intersection fallback.
	Convex bool
}

// Translate returns a copy of p shifted by (dx,dy).
func (p Polygon) Translate(dx, dy float64) Polygon {
	out := Polygon{Points: make([]Point, len(p.Points)), Convex: p.Convex}
	for i, pt := range p.Points {
		out.Points[i] = Point{X: pt.X + dx, Y: pt.Y + dy}
	}
	return out
}

// Rotate returns a copy of p rotated by angleDeg about the origin.
func (p Polygon) Rotate(angleDeg float64) Polygon {
	a := angleDeg * math.Pi / 180
	ca, sa := math.Cos(a), math.Sin(a)
	out := Polygon{Points: make([]Point, len(p.Points)), Convex: p.Convex}
	for i, pt := range p.Points {
		out.Points[i] = Point{X: pt.X*ca - pt.Y*sa, Y: pt.X*sa + pt.Y*ca}
	}
	return out
}

// RotateAbout rotates about an arbitrary pivot instead of the origin.
func (p Polygon) RotateAbout(angleDeg float64, pivot Point) Polygon {
	return p.Translate(-pivot.X, -pivot.Y).Rotate(angleDeg).Translate(pivot.X, pivot.Y)
}

// Expand grows the polygon outward by `margin` along each vertex's normal
// to the polygon centroid, approximating a Minkowski-sum expansion. Used
// for the per-positioner KeepoutExpansion* margins.
func (p Polygon) Expand(margin float64) Polygon {
	if margin == 0 || len(p.Points) == 0 {
		return p
	}
	cx, cy := p.centroid()
	out := Polygon{Points: make([]Point, len(p.Points)), Convex: p.Convex}
	for i, pt := range p.Points {
		dx, dy := pt.X-cx, pt.Y-cy
		d := math.Hypot(dx, dy)
		if d == 0 {
			out.Points[i] = pt
			continue
		}
		out.Points[i] = Point{X: pt.X + dx/d*margin, Y: pt.Y + dy/d*margin}
	}
	return out
}

func (p Polygon) centroid() (float64, float64) {
	var sx, sy float64
	for _, pt := range p.Points {
		sx += pt.X
		sy += pt.Y
	}
	n := float64(len(p.Points))
	return sx / n, sy / n
}

// Circle is used for positioner patrol discs.
type Circle struct {
	Center Point
	Radius float64
}

func (c Circle) IntersectsCircle(o Circle) bool {
	d := math.Hypot(c.Center.X-o.Center.X, c.Center.Y-o.Center.Y)
	return d <= c.Radius+o.Radius
}
