package testutil

import "github.com/ctessum/geom"

// Rect returns an axis-aligned rectangle as a closed counter-clockwise ring.
func Rect(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{
		{X: x0, Y: y0},
		{X: x1, Y: y0},
		{X: x1, Y: y1},
		{X: x0, Y: y1},
		{X: x0, Y: y0},
	}}
}

// Square returns the square with lower-left corner (x0, y0) and side size.
func Square(x0, y0, size float64) geom.Polygon {
	return Rect(x0, y0, x0+size, y0+size)
}

// Line returns a line string through the given coordinate pairs.
func Line(coords ...float64) geom.LineString {
	ls := make(geom.LineString, 0, len(coords)/2)
	for i := 0; i+1 < len(coords); i += 2 {
		ls = append(ls, geom.Point{X: coords[i], Y: coords[i+1]})
	}
	return ls
}

// Pt returns a point.
func Pt(x, y float64) geom.Point {
	return geom.Point{X: x, Y: y}
}
