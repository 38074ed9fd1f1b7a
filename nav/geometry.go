// nav/geometry.go
// Copyright(c) 2025-2026 fms contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package nav

import (
	av "github.com/mmp/fms/aviation"
	"github.com/mmp/fms/math"
	"github.com/mmp/fms/util"
)

const (
	// MaxBankAngle is the bank angle flown for route turns, in degrees.
	MaxBankAngle = 25
	// MaxBankRate is how quickly the aircraft can roll, in degrees/second.
	MaxBankRate = 3
)

// DesiredTrack returns the true course in degrees from the start of a leg
// to its end.
func DesiredTrack(p0, p1 math.Point2LL, nmPerLongitude float32) float32 {
	return math.Heading2LL(p0, p1, nmPerLongitude, 0)
}

// CrossTrack returns the signed cross-track distance in nm of p from the
// leg from p0 to p1; positive means right of course.
func CrossTrack(p0, p1, p math.Point2LL, nmPerLongitude float32) float32 {
	d := math.SignedPointLineDistance(math.LL2NM(p, nmPerLongitude),
		math.LL2NM(p0, nmPerLongitude), math.LL2NM(p1, nmPerLongitude))
	if math.IsInf(d) {
		return 0
	}
	return d
}

// PassedAbeam reports whether p has passed the perpendicular through the
// end of the leg from p0 to p1.
func PassedAbeam(p0, p1, p math.Point2LL, nmPerLongitude float32) bool {
	v := math.Sub2f(math.LL2NM(p1, nmPerLongitude), math.LL2NM(p0, nmPerLongitude))
	w := math.Sub2f(math.LL2NM(p, nmPerLongitude), math.LL2NM(p1, nmPerLongitude))
	return math.Dot(v, w) > 0
}

// InterceptAngle returns the angle in degrees to add to the desired track
// to rejoin it, given the signed cross-track error. The angle is
// proportional to the deflection and saturates at the capture angle for
// the given sensitivity tier; its sign opposes the error.
func InterceptAngle(xtk float32, sens av.NavSensitivity) float32 {
	defl := math.Clamp(xtk/sens.FullScaleDeflection(), -1, 1)
	return -defl * sens.CaptureAngle()
}

// TurnRate returns the steady-state turn rate in degrees/second at the
// given true airspeed and bank angle, capped at standard rate.
func TurnRate(tas, bank float32) float32 {
	if tas <= 0 {
		return 0
	}
	tasMS := tas * 0.514444
	return min(math.Degrees(9.81*math.Tan(math.Radians(bank))/tasMS), 3)
}

// TurnRadius returns the steady-state turn radius in nm.
// R = V / ω where V is in nm/s and ω is in rad/s.
func TurnRadius(gs, tas, bank float32) float32 {
	rate := math.Radians(TurnRate(tas, bank))
	if rate <= 0 {
		return 0
	}
	return (gs / 3600) / rate
}

// RollLeadDistance returns the distance in nm the aircraft travels while
// rolling into the turn.
func RollLeadDistance(gs float32) float32 {
	rollTime := float32(MaxBankAngle) / MaxBankRate
	return (gs / 3600) * rollTime
}

// AnticipationDistance returns how far before a waypoint the turn onto
// the next leg should begin, given the projected course change in
// degrees. Capped since the tangent blows up as the course change
// approaches 180 degrees.
func AnticipationDistance(gs, tas, courseChange float32) float32 {
	r := TurnRadius(gs, tas, MaxBankAngle)
	d := RollLeadDistance(gs) + r*math.Tan(math.Radians(courseChange/2))
	return min(d, util.Select[float32](tas < 350, 7, 10))
}

// WindCorrectionAngle returns the crab angle in degrees to add to the
// desired course so that the resulting track over the ground matches it.
// Wind direction is the direction the wind is blowing from, in degrees
// true.
func WindCorrectionAngle(course, tas, windDirection, windSpeed float32) float32 {
	if tas <= 0 || windSpeed == 0 {
		return 0
	}
	rel := math.Radians(windDirection - course)
	return math.Degrees(math.SafeASin(windSpeed * math.Sin(rel) / tas))
}

// RequiredVerticalSpeed returns the vertical speed in feet/minute needed
// to descend deltaAlt feet over dist nm at the given groundspeed.
func RequiredVerticalSpeed(deltaAlt, dist, gs float32) float32 {
	if dist <= 0 {
		return 0
	}
	fpa := math.Atan(deltaAlt / (dist * math.NauticalMilesToFeet))
	return -(math.NauticalMilesToFeet / 60) * gs * math.Tan(fpa)
}

// VerticalSpeedForFPA returns the vertical speed in feet/minute that
// flies the given flight path angle in degrees at the given groundspeed.
func VerticalSpeedForFPA(fpa, gs float32) float32 {
	return (math.NauticalMilesToFeet / 60) * gs * math.Tan(math.Radians(fpa))
}
