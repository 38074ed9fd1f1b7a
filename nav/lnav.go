// nav/lnav.go
// Copyright(c) 2025-2026 fms contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package nav

import (
	"time"

	av "github.com/mmp/fms/aviation"
	"github.com/mmp/fms/math"
)

const (
	lnavRolloutThreshold    = 15  // degrees off the new track before rolling out
	lnavSequenceMinGS       = 25  // knots; below this we're taxiing, not flying
	lnavMinTrackingDistance = 0.5 // nm; inside this, course updates are advisory only
	lnavProximitySeconds    = 5   // alert this many seconds before the waypoint
	lnavInterceptCutoff     = 5   // degrees; smaller intercepts fly direct instead
)

type LateralState int

const (
	Tracking LateralState = iota
	TurnCompleting
	InDiscontinuity
)

func (s LateralState) String() string {
	return []string{"tracking", "turn-completing", "in-discontinuity"}[s]
}

// lateralMemory is the director state that survives between cycles; it
// is small enough to copy and is rebuilt against the plan whenever the
// plan version changes.
type lateralMemory struct {
	state       LateralState
	seqMode     SequenceMode
	activeIdx   int
	planVersion int64
	alertFired  bool
}

// LNav is the lateral navigation director: it owns the active-waypoint
// index, decides when to sequence to the next leg, and turns leg
// geometry into heading-bug commands. Like the vertical director it
// never steers the aircraft itself; everything goes out through
// GuidanceOutputs.
type LNav struct {
	Callsign string

	lateralMemory

	holds HoldsDirector
	legs  *av.LegCache
}

func NewLNav(callsign string, holds HoldsDirector) *LNav {
	return &LNav{Callsign: callsign, holds: holds, legs: av.NewLegCache()}
}

func (l *LNav) State() LateralState          { return l.state }
func (l *LNav) SequencingMode() SequenceMode { return l.seqMode }
func (l *LNav) ActiveWaypointIndex() int     { return l.activeIdx }

// resyncPlan returns the director memory rebuilt against an edited plan:
// guidance re-points to the plan's active waypoint, a discontinuity the
// edit resolved is cleared, and sequencing returns to automatic unless
// the discontinuity remains.
func resyncPlan(cur lateralMemory, fp *av.FlightPlan) lateralMemory {
	next := cur
	next.planVersion = fp.Version
	next.activeIdx = math.Clamp(fp.ActiveIndex, 0, max(0, len(fp.Waypoints)-1))
	next.alertFired = false

	if cur.state == InDiscontinuity {
		if wp, ok := fp.Waypoint(next.activeIdx); ok && !wp.EndsInDiscontinuity() {
			next.state = Tracking
		}
	}
	if next.state == InDiscontinuity {
		next.seqMode = SequenceInhibit
	} else {
		next.seqMode = SequenceAuto
	}
	return next
}

// Update runs one lateral guidance cycle.
func (l *LNav) Update(state *AircraftState, fp *av.FlightPlan, mode ModeState) GuidanceOutputs {
	var out GuidanceOutputs

	if fp.Version != l.planVersion {
		prevSeq := l.seqMode
		l.lateralMemory = resyncPlan(l.lateralMemory, fp)
		NavLog(l.Callsign, state.Time, NavLogRoute, "plan v%d: active %d state %s seq %s",
			fp.Version, l.activeIdx, l.state, l.seqMode)
		if l.seqMode != prevSeq {
			m := l.seqMode
			out.SequenceRequest = &m
		}
	}

	out.Annunciators.Discontinuity = l.state == InDiscontinuity

	// A hold at the active waypoint takes over lateral guidance entirely
	// until the holds director is done with it.
	if wp, ok := fp.Waypoint(l.activeIdx); ok && wp.Hold() && l.holds != nil {
		if hs := l.holds.UpdateHold(state, fp); hs != HoldNone && hs != HoldExited {
			NavLog(l.Callsign, state.Time, NavLogHold, "hold %s at %s; lateral suspended", hs, wp.Fix)
			return out
		}
	}

	switch l.state {
	case Tracking:
		l.updateTracking(state, fp, mode, &out)
	case TurnCompleting:
		l.updateTurnCompleting(state, fp, mode, &out)
	case InDiscontinuity:
		// No lateral commands until a plan edit resolves it or
		// sequencing is reset externally.
	}
	return out
}

func (l *LNav) updateTracking(state *AircraftState, fp *av.FlightPlan, mode ModeState, out *GuidanceOutputs) {
	wp, ok := fp.Waypoint(l.activeIdx)
	if !ok {
		return
	}

	distToActive := math.NMDistance2LL(state.Position, wp.Location)

	var dtk, xtk float32
	haveLeg := false
	if geo, err := l.legs.Geometry(fp, l.activeIdx, state.NmPerLongitude); err == nil {
		from, _, _ := fp.Leg(l.activeIdx)
		dtk = geo.DTK
		xtk = CrossTrack(from.Location, wp.Location, state.Position, state.NmPerLongitude)
		haveLeg = true

		if PassedAbeam(from.Location, wp.Location, state.Position, state.NmPerLongitude) {
			NavLog(l.Callsign, state.Time, NavLogWaypoint, "abeam %s; sequencing", wp.Fix)
			l.sequenceToNextWaypoint(state, fp, out)
			return
		}
	} else {
		// No inbound leg; fly direct.
		dtk = math.Heading2LL(state.Position, wp.Location, state.NmPerLongitude, 0)
	}

	// Start the turn onto the next leg early enough to roll out on it,
	// unless this waypoint must be overflown.
	var anticipation float32
	if next, err := l.legs.Geometry(fp, l.activeIdx+1, state.NmPerLongitude); err == nil {
		courseChange := math.HeadingDifference(dtk, next.DTK)
		anticipation = AnticipationDistance(state.GS, state.TAS, courseChange)
		if !wp.FlyOver() && distToActive < anticipation {
			NavLog(l.Callsign, state.Time, NavLogWaypoint, "%.1fnm from %s; turning early for %.0f course change",
				distToActive, wp.Fix, courseChange)
			l.sequenceToNextWaypoint(state, fp, out)
			return
		}
	}

	if alertDist := state.GS/3600*lnavProximitySeconds + anticipation; distToActive < alertDist && !l.alertFired {
		l.alertFired = true
		out.Annunciators.ProximityAlert = true
		NavLog(l.Callsign, state.Time, NavLogWaypoint, "approaching %s, %.1fnm", wp.Fix, distToActive)
	}

	course := dtk
	if haveLeg {
		if ia := InterceptAngle(xtk, l.sensitivity(fp, mode)); math.Abs(ia) > lnavInterceptCutoff {
			course = math.NormalizeHeading(dtk + ia)
		} else {
			course = math.Heading2LL(state.Position, wp.Location, state.NmPerLongitude, 0)
		}
	}

	// Close to the waypoint the course keeps updating for display but
	// isn't pushed, so the bug doesn't swing through the flyby.
	l.setCourse(state, course, distToActive > lnavMinTrackingDistance, out)
}

func (l *LNav) updateTurnCompleting(state *AircraftState, fp *av.FlightPlan, mode ModeState, out *GuidanceOutputs) {
	wp, ok := fp.Waypoint(l.activeIdx)
	if !ok {
		l.state = Tracking
		return
	}

	var dtk float32
	if geo, err := l.legs.Geometry(fp, l.activeIdx, state.NmPerLongitude); err == nil {
		dtk = geo.DTK
	} else {
		dtk = math.Heading2LL(state.Position, wp.Location, state.NmPerLongitude, 0)
	}

	if math.HeadingDifference(state.Heading, dtk) > lnavRolloutThreshold {
		turn := math.HeadingSignedTurn(state.Track, dtk)
		course := math.NormalizeHeading(state.Track + math.Sign(turn)*90)
		l.setCourse(state, course, true, out)
		return
	}

	NavLog(l.Callsign, state.Time, NavLogHeading, "rollout complete onto %03.0f", dtk)
	l.state = Tracking
	l.updateTracking(state, fp, mode, out)
}

// sequenceToNextWaypoint advances the active waypoint after the current
// one has been passed (or is about to be, for an anticipated turn).
func (l *LNav) sequenceToNextWaypoint(state *AircraftState, fp *av.FlightPlan, out *GuidanceOutputs) {
	if l.seqMode == SequenceInhibit || state.GS <= lnavSequenceMinGS {
		return
	}

	wp, ok := fp.Waypoint(l.activeIdx)
	if !ok {
		return
	}

	if wp.EndsInDiscontinuity() || !fp.HasNext(l.activeIdx) {
		// Nothing to navigate to; hold heading until the plan is fixed
		// up or sequencing is reset.
		l.state = InDiscontinuity
		l.inhibit(out)
		out.Heading = &HeadingCommand{Heading: state.MagneticHeading, Execute: true}
		out.Annunciators.Discontinuity = true
		NavLog(l.Callsign, state.Time, NavLogSequence, "discontinuity after %s; holding heading %03.0f",
			wp.Fix, state.MagneticHeading)
		return
	}

	l.activeIdx++
	l.state = TurnCompleting
	l.alertFired = false
	idx := l.activeIdx
	out.Sequenced = &idx

	next := &fp.Waypoints[l.activeIdx]
	if next.Runway() {
		// Sequencing past a runway is always a manual step.
		l.inhibit(out)
		NavLog(l.Callsign, state.Time, NavLogSequence, "sequenced to runway %s; sequencing inhibited", next.Fix)
	} else {
		NavLog(l.Callsign, state.Time, NavLogSequence, "sequenced to %s", next.Fix)
	}
}

func (l *LNav) inhibit(out *GuidanceOutputs) {
	if l.seqMode != SequenceInhibit {
		l.seqMode = SequenceInhibit
		m := SequenceInhibit
		out.SequenceRequest = &m
	}
}

// SetSequenceMode is the external sequencing control. Setting AUTO while
// parked in a discontinuity clears it and advances to the next waypoint.
func (l *LNav) SetSequenceMode(fp *av.FlightPlan, m SequenceMode, simTime time.Time) {
	if m == SequenceAuto && l.state == InDiscontinuity {
		if fp.HasNext(l.activeIdx) {
			l.activeIdx++
		}
		l.state = TurnCompleting
		l.alertFired = false
		NavLog(l.Callsign, simTime, NavLogSequence, "discontinuity cleared; active waypoint %d", l.activeIdx)
	}
	l.seqMode = m
}

// sensitivity returns the navigation sensitivity tier: approach mode
// tightens full-scale deflection the most; terminal applies when flying
// to or from a runway.
func (l *LNav) sensitivity(fp *av.FlightPlan, mode ModeState) av.NavSensitivity {
	if mode.LateralMode == LateralModeApproach {
		return av.SensitivityApproach
	}
	if wp, ok := fp.Waypoint(l.activeIdx); ok && wp.Runway() {
		return av.SensitivityTerminal
	}
	if wp, ok := fp.Waypoint(l.activeIdx + 1); ok && wp.Runway() {
		return av.SensitivityTerminal
	}
	return av.SensitivityNormal
}

// setCourse converts a desired course over the ground into a heading-bug
// command: crab for the wind in the true frame, then convert to
// magnetic.
func (l *LNav) setCourse(state *AircraftState, course float32, execute bool, out *GuidanceOutputs) {
	wca := WindCorrectionAngle(course, state.TAS, state.Wind.Direction(), state.Wind.Speed())
	hdg := math.TrueToMagneticHeading(math.NormalizeHeading(course+wca), state.MagneticVariation)
	out.Heading = &HeadingCommand{Heading: hdg, Execute: execute}
	NavLog(l.Callsign, state.Time, NavLogHeading, "course %03.0f wca %+.1f hdg %03.0f execute %v",
		course, wca, hdg, execute)
}
