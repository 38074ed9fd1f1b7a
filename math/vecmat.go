// math/vecmat.go
// Copyright(c) 2025-2026 fms contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import gomath "math"

///////////////////////////////////////////////////////////////////////////
// 2d vectors

func Add2f(a [2]float32, b [2]float32) [2]float32 {
	return [2]float32{a[0] + b[0], a[1] + b[1]}
}

func Sub2f(a [2]float32, b [2]float32) [2]float32 {
	return [2]float32{a[0] - b[0], a[1] - b[1]}
}

func Scale2f(a [2]float32, s float32) [2]float32 {
	return [2]float32{s * a[0], s * a[1]}
}

func Dot(a, b [2]float32) float32 {
	return a[0]*b[0] + a[1]*b[1]
}

func Length2f(v [2]float32) float32 {
	return Sqrt(v[0]*v[0] + v[1]*v[1])
}

func Distance2f(a [2]float32, b [2]float32) float32 {
	return Length2f(Sub2f(a, b))
}

///////////////////////////////////////////////////////////////////////////
// lines

// SignedPointLineDistance returns the signed distance from the point p to
// the infinite line defined by (p0, p1) where points to the right of the
// directed line have positive distances.
func SignedPointLineDistance(p, p0, p1 [2]float32) float32 {
	// https://en.wikipedia.org/wiki/Distance_from_a_point_to_a_line
	dx, dy := p1[0]-p0[0], p1[1]-p0[1]
	sq := dx*dx + dy*dy
	if sq == 0 {
		return float32(gomath.Inf(1))
	}
	return (dx*(p0[1]-p[1]) - dy*(p0[0]-p[0])) / Sqrt(sq)
}

// PointLineDistance returns the minimum distance from the point p to the infinite line defined by (p0, p1).
func PointLineDistance(p, p0, p1 [2]float32) float32 {
	return Abs(SignedPointLineDistance(p, p0, p1))
}
