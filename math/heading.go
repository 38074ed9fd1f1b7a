// math/heading.go
// Copyright(c) 2025-2026 fms contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

///////////////////////////////////////////////////////////////////////////
// headings and directions

// Heading2LL returns the heading from the point |from| to the point |to|
// in degrees.  The provided points should be in latitude-longitude
// coordinates and the provided magnetic correction is applied to the
// result.
func Heading2LL(from Point2LL, to Point2LL, nmPerLongitude float32, magCorrection float32) float32 {
	v := Point2LL{to[0] - from[0], to[1] - from[1]}

	// Note that atan2() normally measures w.r.t. the +x axis and angles
	// are positive for counter-clockwise. We want to measure w.r.t. +y and
	// to have positive angles be clockwise. Happily, swapping the order of
	// values passed to atan2()--passing (x,y), gives what we want.
	angle := Degrees(Atan2(v[0]*nmPerLongitude, v[1]*NMPerLatitude))
	return NormalizeHeading(angle + magCorrection)
}

// VectorHeading returns the heading in degrees that the given vector
// (expressed in coordinates where both axes have the same measure)
// points toward.
func VectorHeading(v [2]float32) float32 {
	return NormalizeHeading(Degrees(Atan2(v[0], v[1])))
}

// HeadingVector returns a unit vector pointing along the given heading,
// again in coordinates where both axes have the same measure.
func HeadingVector(hdg float32) [2]float32 {
	h := Radians(hdg)
	return [2]float32{Sin(h), Cos(h)}
}

// HeadingDifference returns the minimum difference between two
// headings. (i.e., the result is always in the range [0,180].)
func HeadingDifference(a float32, b float32) float32 {
	var d float32
	if a > b {
		d = a - b
	} else {
		d = b - a
	}
	if d > 180 {
		d = 360 - d
	}
	return d
}

// Figure out which way is closest: first find the angle to rotate the
// target heading by so that it's aligned with 180 degrees. This lets us
// not worry about the complexities of the wrap around at 0/360..
func HeadingSignedTurn(cur, target float32) float32 {
	rot := NormalizeHeading(180 - target)
	return 180 - NormalizeHeading(cur+rot) // w.r.t. 180 target
}

// Reduces it to [0,360).
func NormalizeHeading(h float32) float32 {
	if h < 0 {
		return 360 - NormalizeHeading(-h)
	}
	return Mod(h, 360)
}

func OppositeHeading(h float32) float32 {
	return NormalizeHeading(h + 180)
}

// TrueToMagneticHeading converts a heading in degrees true to magnetic,
// given the local magnetic variation (positive east).
func TrueToMagneticHeading(hdg float32, magVar float32) float32 {
	return NormalizeHeading(hdg - magVar)
}

// MagneticToTrueHeading converts a heading in degrees magnetic to true,
// given the local magnetic variation (positive east).
func MagneticToTrueHeading(hdg float32, magVar float32) float32 {
	return NormalizeHeading(hdg + magVar)
}
