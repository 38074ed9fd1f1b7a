// nav/lnav_test.go
// Copyright(c) 2025-2026 fms contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package nav

import (
	"testing"
	"time"

	av "github.com/mmp/fms/aviation"
	"github.com/mmp/fms/math"
)

// Four waypoints with a 90 degree turn at BRAVO and another at CHARL;
// the aircraft flies the ALPHA-BRAVO leg northbound.
func lnavPlan() *av.FlightPlan {
	wp := func(fix string, lon, lat float32) av.Waypoint {
		return av.Waypoint{Fix: fix, Location: math.Point2LL{lon, lat}}
	}
	return &av.FlightPlan{
		Waypoints: av.WaypointArray{
			wp("ALPHA", -73, 40),
			wp("BRAVO", -73, 40.5),
			wp("CHARL", -72.5, 40.5),
			wp("DELTA", -72.5, 41),
		},
		ActiveIndex: 1,
		Version:     1,
	}
}

func lnavAt(p math.Point2LL, hdg, gs float32) *AircraftState {
	return &AircraftState{
		Position:        p,
		Heading:         hdg,
		MagneticHeading: hdg,
		Track:           hdg,
		GS:              gs,
		TAS:             gs,
		NmPerLongitude:  45,
	}
}

func navMode() ModeState {
	return ModeState{ActiveSlot: 1, LateralMode: LateralModeNav}
}

func headingClose(t *testing.T, got *HeadingCommand, want float32, what string) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s: no heading command", what)
	}
	if math.HeadingDifference(got.Heading, want) > 1 {
		t.Errorf("%s: heading %f, expected ~%f", what, got.Heading, want)
	}
}

func TestLNavTracking(t *testing.T) {
	l := NewLNav("N123AB", nil)
	fp := lnavPlan()

	// Mid-leg, on course: fly the bearing to BRAVO.
	out := l.Update(lnavAt(math.Point2LL{-73, 40.2}, 0, 300), fp, navMode())
	headingClose(t, out.Heading, 360, "on course")
	if !out.Heading.Execute {
		t.Errorf("expected executed command mid-leg")
	}
	if out.Sequenced != nil {
		t.Errorf("unexpected sequencing mid-leg")
	}
	if l.State() != Tracking {
		t.Errorf("state %s, expected tracking", l.State())
	}
	if out.Annunciators.ProximityAlert {
		t.Errorf("unexpected proximity alert 18nm out")
	}
}

func TestLNavInterceptCourse(t *testing.T) {
	// 0.315nm right of the northbound leg: intercept angles back to the
	// left, more steeply as the sensitivity tightens.
	pos := math.Point2LL{-72.993, 40.2}

	l := NewLNav("N123AB", nil)
	out := l.Update(lnavAt(pos, 0, 300), lnavPlan(), navMode())
	headingClose(t, out.Heading, 353, "normal sensitivity")

	l = NewLNav("N123AB", nil)
	mode := navMode()
	mode.LateralMode = LateralModeApproach
	out = l.Update(lnavAt(pos, 0, 300), lnavPlan(), mode)
	headingClose(t, out.Heading, 345, "approach sensitivity")
}

func TestLNavAbeamSequencing(t *testing.T) {
	l := NewLNav("N123AB", nil)
	fp := lnavPlan()

	// Just past BRAVO: sequence immediately no matter the anticipation
	// math.
	out := l.Update(lnavAt(math.Point2LL{-73, 40.51}, 0, 300), fp, navMode())
	if out.Sequenced == nil || *out.Sequenced != 2 {
		t.Fatalf("sequenced %+v, expected waypoint 2", out.Sequenced)
	}
	if l.ActiveWaypointIndex() != 2 {
		t.Errorf("active waypoint %d, expected 2", l.ActiveWaypointIndex())
	}
	if l.State() != TurnCompleting {
		t.Errorf("state %s, expected turn-completing", l.State())
	}
}

func TestLNavAnticipatedTurn(t *testing.T) {
	// 3nm from BRAVO with a 90 degree course change ahead: start the
	// turn early.
	pos := math.Point2LL{-73, 40.45}

	l := NewLNav("N123AB", nil)
	out := l.Update(lnavAt(pos, 0, 300), lnavPlan(), navMode())
	if out.Sequenced == nil || *out.Sequenced != 2 {
		t.Errorf("sequenced %+v, expected early turn to waypoint 2", out.Sequenced)
	}

	// Unless BRAVO must be overflown.
	fp := lnavPlan()
	fp.Waypoints[1].SetFlyOver(true)
	l = NewLNav("N123AB", nil)
	out = l.Update(lnavAt(pos, 0, 300), fp, navMode())
	if out.Sequenced != nil {
		t.Errorf("sequenced at a fly-over waypoint")
	}
	if l.State() != Tracking {
		t.Errorf("state %s, expected tracking", l.State())
	}
	if out.Heading == nil || !out.Heading.Execute {
		t.Errorf("expected tracking command while overflying")
	}
	// But the proximity alert still fires inside the anticipation
	// margin.
	if !out.Annunciators.ProximityAlert {
		t.Errorf("expected proximity alert approaching the fly-over")
	}
}

func TestLNavTurnCompleting(t *testing.T) {
	l := NewLNav("N123AB", nil)
	fp := lnavPlan()
	pos := math.Point2LL{-73, 40.51}

	// Sequence at BRAVO, still heading north.
	l.Update(lnavAt(pos, 0, 300), fp, navMode())
	if l.State() != TurnCompleting {
		t.Fatalf("state %s, expected turn-completing", l.State())
	}

	// 90 degrees off the new leg: constant-bank turn command, track+90
	// to the right.
	out := l.Update(lnavAt(pos, 0, 300), fp, navMode())
	headingClose(t, out.Heading, 90, "turn command")
	if !out.Heading.Execute {
		t.Errorf("turn command not executed")
	}
	if l.State() != TurnCompleting {
		t.Errorf("state %s, expected to still be turning", l.State())
	}

	// Inside the rollout threshold: back to tracking, intercepting the
	// eastbound leg from its north side.
	out = l.Update(lnavAt(pos, 80, 300), fp, navMode())
	if l.State() != Tracking {
		t.Errorf("state %s, expected tracking after rollout", l.State())
	}
	headingClose(t, out.Heading, 103, "intercept after rollout")
}

func TestLNavRunwaySequencing(t *testing.T) {
	l := NewLNav("N123AB", nil)
	fp := lnavPlan()
	fp.Waypoints[2].SetRunway(true)

	// Sequencing to a runway waypoint inhibits any further
	// auto-sequencing.
	out := l.Update(lnavAt(math.Point2LL{-73, 40.51}, 0, 300), fp, navMode())
	if out.Sequenced == nil || *out.Sequenced != 2 {
		t.Fatalf("sequenced %+v, expected waypoint 2", out.Sequenced)
	}
	if l.SequencingMode() != SequenceInhibit {
		t.Errorf("sequencing %s, expected INHIBIT at the runway", l.SequencingMode())
	}
	if out.SequenceRequest == nil || *out.SequenceRequest != SequenceInhibit {
		t.Errorf("sequence request %+v, expected INHIBIT", out.SequenceRequest)
	}
	if l.State() != TurnCompleting {
		t.Errorf("state %s, expected turn-completing", l.State())
	}

	// Roll out onto the runway leg, then pass abeam it: no further
	// sequencing happens on its own.
	l.Update(lnavAt(math.Point2LL{-72.8, 40.5}, 90, 140), fp, navMode())
	if l.State() != Tracking {
		t.Fatalf("state %s, expected tracking toward the runway", l.State())
	}
	out = l.Update(lnavAt(math.Point2LL{-72.45, 40.5}, 90, 140), fp, navMode())
	if out.Sequenced != nil {
		t.Errorf("auto-sequenced past the runway")
	}
	if l.ActiveWaypointIndex() != 2 {
		t.Errorf("active waypoint %d, expected to stay 2", l.ActiveWaypointIndex())
	}
}

func TestLNavDiscontinuity(t *testing.T) {
	l := NewLNav("N123AB", nil)
	fp := lnavPlan()
	fp.Waypoints[1].SetEndsInDiscontinuity(true)

	// Passing BRAVO drops into the discontinuity: hold heading, inhibit
	// sequencing.
	out := l.Update(lnavAt(math.Point2LL{-73, 40.51}, 10, 300), fp, navMode())
	if l.State() != InDiscontinuity {
		t.Fatalf("state %s, expected in-discontinuity", l.State())
	}
	headingClose(t, out.Heading, 10, "heading hold")
	if !out.Annunciators.Discontinuity {
		t.Errorf("expected discontinuity annunciation")
	}
	if out.SequenceRequest == nil || *out.SequenceRequest != SequenceInhibit {
		t.Errorf("sequence request %+v, expected INHIBIT", out.SequenceRequest)
	}
	if out.Sequenced != nil {
		t.Errorf("unexpectedly advanced into the discontinuity")
	}

	// Parked: no commands while the discontinuity stands.
	out = l.Update(lnavAt(math.Point2LL{-73, 40.6}, 10, 300), fp, navMode())
	if out.Heading != nil {
		t.Errorf("unexpected command while in discontinuity")
	}
	if !out.Annunciators.Discontinuity {
		t.Errorf("expected discontinuity annunciation to persist")
	}

	// An explicit AUTO reset clears it and advances.
	l.SetSequenceMode(fp, SequenceAuto, time.Time{})
	if l.ActiveWaypointIndex() != 2 {
		t.Errorf("active waypoint %d, expected 2 after reset", l.ActiveWaypointIndex())
	}
	if l.State() != TurnCompleting || l.SequencingMode() != SequenceAuto {
		t.Errorf("state %s seq %s, expected turn-completing/AUTO", l.State(), l.SequencingMode())
	}
}

func TestLNavDiscontinuityResolvedByEdit(t *testing.T) {
	l := NewLNav("N123AB", nil)
	fp := lnavPlan()
	fp.Waypoints[1].SetEndsInDiscontinuity(true)

	l.Update(lnavAt(math.Point2LL{-73, 40.51}, 10, 300), fp, navMode())
	if l.State() != InDiscontinuity {
		t.Fatalf("state %s, expected in-discontinuity", l.State())
	}

	// Editing the plan to remove the discontinuity resynchronizes the
	// director back to tracking with sequencing restored.
	fp.Edit(func(p *av.FlightPlan) {
		p.Waypoints[1].SetEndsInDiscontinuity(false)
	})
	out := l.Update(lnavAt(math.Point2LL{-73, 40.51}, 10, 300), fp, navMode())
	if l.State() == InDiscontinuity {
		t.Errorf("still in discontinuity after the plan edit resolved it")
	}
	if l.SequencingMode() != SequenceAuto {
		t.Errorf("sequencing %s, expected AUTO after resync", l.SequencingMode())
	}
	if out.SequenceRequest == nil || *out.SequenceRequest != SequenceAuto {
		t.Errorf("sequence request %+v, expected AUTO", out.SequenceRequest)
	}
}

func TestResyncPlan(t *testing.T) {
	fp := lnavPlan()
	fp.Version = 2

	cur := lateralMemory{
		state:       InDiscontinuity,
		seqMode:     SequenceInhibit,
		activeIdx:   5,
		planVersion: 1,
		alertFired:  true,
	}

	next := resyncPlan(cur, fp)
	want := lateralMemory{state: Tracking, seqMode: SequenceAuto, activeIdx: 1, planVersion: 2}
	if next != want {
		t.Errorf("resync gave %+v, expected %+v", next, want)
	}

	// Idempotent: resyncing against the same plan changes nothing.
	if again := resyncPlan(next, fp); again != next {
		t.Errorf("resync not idempotent: %+v then %+v", next, again)
	}

	// An unresolved discontinuity survives the resync and keeps
	// sequencing inhibited.
	fp2 := lnavPlan()
	fp2.Waypoints[1].SetEndsInDiscontinuity(true)
	fp2.Version = 3
	n2 := resyncPlan(cur, fp2)
	if n2.state != InDiscontinuity || n2.seqMode != SequenceInhibit {
		t.Errorf("resync gave %+v, expected discontinuity to persist", n2)
	}
}

func TestLNavSequenceRequiresGroundspeed(t *testing.T) {
	l := NewLNav("N123AB", nil)
	fp := lnavPlan()

	// Abeam the waypoint but barely moving: no sequencing.
	out := l.Update(lnavAt(math.Point2LL{-73, 40.51}, 0, 20), fp, navMode())
	if out.Sequenced != nil {
		t.Errorf("sequenced at taxi speed")
	}
	if l.ActiveWaypointIndex() != 1 {
		t.Errorf("active waypoint %d, expected 1", l.ActiveWaypointIndex())
	}
}

type scriptedHolds struct {
	status HoldStatus
}

func (h *scriptedHolds) UpdateHold(*AircraftState, *av.FlightPlan) HoldStatus {
	return h.status
}

func TestLNavHoldSuspension(t *testing.T) {
	holds := &scriptedHolds{status: HoldEstablished}
	l := NewLNav("N123AB", holds)
	fp := lnavPlan()
	fp.Waypoints[1].SetHold(0)

	// The holds director owns the aircraft: no lateral commands.
	out := l.Update(lnavAt(math.Point2LL{-73, 40.2}, 0, 300), fp, navMode())
	if out.Heading != nil {
		t.Errorf("lateral command emitted while holding")
	}

	// Hold done: tracking resumes.
	holds.status = HoldExited
	out = l.Update(lnavAt(math.Point2LL{-73, 40.2}, 0, 300), fp, navMode())
	if out.Heading == nil {
		t.Errorf("no tracking command after the hold exited")
	}
}

func TestLNavCloseInTracking(t *testing.T) {
	l := NewLNav("N123AB", nil)
	fp := lnavPlan()
	fp.Waypoints = fp.Waypoints[:2] // no onward leg, so no early turn

	// A quarter mile out: the course still updates but isn't pushed,
	// and the proximity alert fires once.
	state := lnavAt(math.Point2LL{-73, 40.4958}, 0, 300)
	out := l.Update(state, fp, navMode())
	if out.Heading == nil {
		t.Fatalf("no advisory course close in")
	}
	if out.Heading.Execute {
		t.Errorf("course executed inside the minimum tracking distance")
	}
	if !out.Annunciators.ProximityAlert {
		t.Errorf("expected proximity alert close in")
	}

	out = l.Update(state, fp, navMode())
	if out.Annunciators.ProximityAlert {
		t.Errorf("proximity alert fired twice for the same waypoint")
	}
}

func TestLNavWindCorrection(t *testing.T) {
	l := NewLNav("N123AB", nil)
	fp := lnavPlan()

	// 30kt direct crosswind from the east on the northbound leg: crab
	// right about 5.7 degrees.
	state := lnavAt(math.Point2LL{-73, 40.2}, 0, 300)
	state.Wind = av.WindFromDirectionSpeed(90, 30)
	out := l.Update(state, fp, navMode())
	headingClose(t, out.Heading, 5.7, "crosswind crab")

	// With easterly variation the bug reads lower than true.
	l = NewLNav("N123AB", nil)
	state.MagneticVariation = 13
	out = l.Update(state, fp, navMode())
	headingClose(t, out.Heading, 352.7, "crab with variation")
}
