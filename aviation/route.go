// aviation/route.go
// Copyright(c) 2025-2026 fms contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package aviation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmp/fms/math"
)

type WaypointFlags uint32

const (
	WaypointFlagFlyOver WaypointFlags = 1 << iota
	WaypointFlagRunway
	WaypointFlagDiscontinuity
	WaypointFlagHold
	WaypointFlagHasAltRestriction
)

// Waypoint is the core waypoint struct. Most waypoints only use Fix,
// Location, and a few flags; AltRestriction is inline, with a validity
// flag, so that constrained waypoints don't require a heap allocation.
type Waypoint struct {
	Fix            string              `json:"fix"`
	Location       math.Point2LL       `json:"location,omitempty"`
	AltRestriction AltitudeRestriction // valid iff WaypointFlagHasAltRestriction set
	Flags          WaypointFlags
	HoldRef        int16 // index into the plan's hold definitions; valid iff WaypointFlagHold set
}

// Flag readers (value receiver)
func (wp Waypoint) FlyOver() bool             { return wp.Flags&WaypointFlagFlyOver != 0 }
func (wp Waypoint) Runway() bool              { return wp.Flags&WaypointFlagRunway != 0 }
func (wp Waypoint) EndsInDiscontinuity() bool { return wp.Flags&WaypointFlagDiscontinuity != 0 }
func (wp Waypoint) Hold() bool                { return wp.Flags&WaypointFlagHold != 0 }

// Flag setters (pointer receiver)
func (wp *Waypoint) setFlag(f WaypointFlags, v bool) {
	if v {
		wp.Flags |= f
	} else {
		wp.Flags &^= f
	}
}

func (wp *Waypoint) SetFlyOver(v bool)             { wp.setFlag(WaypointFlagFlyOver, v) }
func (wp *Waypoint) SetRunway(v bool)              { wp.setFlag(WaypointFlagRunway, v) }
func (wp *Waypoint) SetEndsInDiscontinuity(v bool) { wp.setFlag(WaypointFlagDiscontinuity, v) }

func (wp *Waypoint) SetHold(ref int16) {
	wp.HoldRef = ref
	wp.Flags |= WaypointFlagHold
}

// AltitudeRestriction returns a pointer to the inline restriction if the flag is set, else nil.
func (wp *Waypoint) AltitudeRestriction() *AltitudeRestriction {
	if wp.Flags&WaypointFlagHasAltRestriction != 0 {
		return &wp.AltRestriction
	}
	return nil
}

// SetAltitudeRestriction stores the restriction inline and sets the flag.
func (wp *Waypoint) SetAltitudeRestriction(ar AltitudeRestriction) {
	wp.AltRestriction = ar
	wp.Flags |= WaypointFlagHasAltRestriction
}

func (wp Waypoint) String() string {
	s := wp.Fix
	if ar := (&wp).AltitudeRestriction(); ar != nil {
		s += "/a" + ar.Encoded()
	}
	if wp.FlyOver() {
		s += "/fo"
	}
	if wp.Runway() {
		s += "/rwy"
	}
	if wp.Hold() {
		s += "/h"
	}
	if wp.EndsInDiscontinuity() {
		s += "/disc"
	}
	return s
}

type WaypointArray []Waypoint

// RouteString returns a compact human-readable encoding of the route,
// mostly for logging.
func (wa WaypointArray) RouteString() string {
	var strs []string
	for _, wp := range wa {
		strs = append(strs, wp.String())
	}
	return strings.Join(strs, " ")
}

///////////////////////////////////////////////////////////////////////////
// AltitudeRestriction

type AltitudeRestriction struct {
	// We treat 0 as "unset", which works naturally for the bottom but
	// requires occasional care at the top.
	Range [2]float32
}

func (a *AltitudeRestriction) UnmarshalJSON(b []byte) error {
	// Allow unmarshaling from a bare altitude for "at" restrictions.
	if alt, err := strconv.Atoi(string(b)); err == nil {
		a.Range = [2]float32{float32(alt), float32(alt)}
		return nil
	} else {
		// Otherwise declare a temporary variable with matching structure
		// but a different type to avoid an infinite loop when
		// json.Unmarshal is called.
		ar := struct{ Range [2]float32 }{}
		if err := json.Unmarshal(b, &ar); err == nil {
			a.Range = ar.Range
			return nil
		} else {
			return err
		}
	}
}

// TargetAltitude returns the altitude to aim for, given a current
// altitude: the nearest altitude that satisfies the restriction.
func (a AltitudeRestriction) TargetAltitude(alt float32) float32 {
	if a.Range[1] != 0 {
		return math.Clamp(alt, a.Range[0], a.Range[1])
	} else {
		return max(alt, a.Range[0])
	}
}

// ClampRange limits a range of altitudes to satisfy the altitude
// restriction; the returned Boolean indicates whether the ranges
// overlapped.
func (a AltitudeRestriction) ClampRange(r [2]float32) (c [2]float32, ok bool) {
	// r: I could be at any of these altitudes and be fine for a future restriction
	// a: working backwards, we have this additional restriction, how does it limit r?
	// c: result
	ok = true
	c = r

	if a.Range[0] != 0 { // at or above
		ok = r[1] == 0 || r[1] >= a.Range[0]
		c[0] = max(a.Range[0], r[0])
		if r[1] != 0 {
			c[1] = max(a.Range[0], r[1])
		}
	}

	if a.Range[1] != 0 { // at or below
		ok = ok && c[0] <= a.Range[1]
		c[0] = min(c[0], a.Range[1])
		c[1] = min(c[1], a.Range[1])
	}

	return
}

// ParseAltitudeRestriction parses an encoded altitude restriction,
// e.g. "5000+", "3000-", "2000-4000", or a bare "at" altitude.
func ParseAltitudeRestriction(s string) (*AltitudeRestriction, error) {
	n := len(s)
	if n == 0 {
		return nil, fmt.Errorf("%s: no altitude provided for crossing restriction", s)
	}

	if s[n-1] == '-' {
		// At or below
		alt, err := strconv.Atoi(s[:n-1])
		if err != nil {
			return nil, fmt.Errorf("%s: error parsing altitude restriction: %v", s, err)
		}
		return &AltitudeRestriction{Range: [2]float32{0, float32(alt)}}, nil
	} else if s[n-1] == '+' {
		// At or above
		alt, err := strconv.Atoi(s[:n-1])
		if err != nil {
			return nil, fmt.Errorf("%s: error parsing altitude restriction: %v", s, err)
		}
		return &AltitudeRestriction{Range: [2]float32{float32(alt), 0}}, nil
	} else if alts := strings.Split(s, "-"); len(alts) == 2 {
		// Between
		if low, err := strconv.Atoi(alts[0]); err != nil {
			return nil, fmt.Errorf("%s: error parsing altitude restriction: %v", s, err)
		} else if high, err := strconv.Atoi(alts[1]); err != nil {
			return nil, fmt.Errorf("%s: error parsing altitude restriction: %v", s, err)
		} else if low > high {
			return nil, fmt.Errorf("%s: low altitude %d is above high altitude %d", s, low, high)
		} else {
			return &AltitudeRestriction{Range: [2]float32{float32(low), float32(high)}}, nil
		}
	} else {
		// At
		if alt, err := strconv.Atoi(s); err != nil {
			return nil, fmt.Errorf("%s: error parsing altitude restriction: %v", s, err)
		} else {
			return &AltitudeRestriction{Range: [2]float32{float32(alt), float32(alt)}}, nil
		}
	}
}

// Encoded returns the restriction in the encoded form in which it is
// specified in scenario files, e.g. "5000+" for "at or above 5000".
func (a AltitudeRestriction) Encoded() string {
	if a.Range[0] != 0 {
		if a.Range[0] == a.Range[1] {
			return fmt.Sprintf("%.0f", a.Range[0])
		} else if a.Range[1] != 0 {
			return fmt.Sprintf("%.0f-%.0f", a.Range[0], a.Range[1])
		} else {
			return fmt.Sprintf("%.0f+", a.Range[0])
		}
	} else if a.Range[1] != 0 {
		return fmt.Sprintf("%.0f-", a.Range[1])
	} else {
		return ""
	}
}

///////////////////////////////////////////////////////////////////////////
// NavSensitivity

// NavSensitivity gives the CDI scaling tier that's currently active;
// finer tiers tighten both full-scale deflection and the course capture
// angle.
type NavSensitivity int

const (
	SensitivityNormal NavSensitivity = iota
	SensitivityTerminal
	SensitivityApproach
)

func (s NavSensitivity) String() string {
	return []string{"normal", "terminal", "approach"}[s]
}

// FullScaleDeflection returns the cross-track error in nm that gives
// full-scale deflection for the sensitivity tier.
func (s NavSensitivity) FullScaleDeflection() float32 {
	return [...]float32{2, 1, 0.3}[s]
}

// CaptureAngle returns the maximum course intercept angle in degrees for
// the sensitivity tier.
func (s NavSensitivity) CaptureAngle() float32 {
	return [...]float32{45, 30, 15}[s]
}
