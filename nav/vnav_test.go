// nav/vnav_test.go
// Copyright(c) 2025-2026 fms contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package nav

import (
	gomath "math"
	"testing"
)

func vnavState(alt, gs, vs float32) *AircraftState {
	return &AircraftState{
		Altitude:       alt,
		GS:             gs,
		TAS:            gs,
		VerticalSpeed:  vs,
		NmPerLongitude: 45,
	}
}

func descendMode(selected float32) ModeState {
	return ModeState{
		SelectedAltitude1: selected,
		SelectedAltitude2: selected,
		ActiveSlot:        1,
		VerticalMode:      VerticalModePitch,
		LateralMode:       LateralModeNav,
	}
}

func descentPath(target, targetDist, todDist, deviation float32) VerticalGuidanceInput {
	return VerticalGuidanceInput{
		PathValid:      true,
		TargetAltitude: target,
		TargetDistance: targetDist,
		TODDistance:    todDist,
		Deviation:      deviation,
		DesiredFPA:     -3,
		Segment:        SegmentEnroute,
	}
}

func TestVNavArmBelow(t *testing.T) {
	v := NewVNav("N123AB")
	state := vnavState(10000, 300, 0)
	mode := descendMode(8000)

	in := descentPath(8000, 15, 10, 1000)
	in.NewPath = true
	out := v.Update(state, in, mode)

	if v.State() != PathArmedBelow {
		t.Errorf("state %s, expected armed-below", v.State())
	}
	if out.PathStatus != PathStatusArmed {
		t.Errorf("path status %s, expected ARMED", out.PathStatus)
	}
	if !out.Annunciators.DescentPreview {
		t.Errorf("expected descent preview while armed")
	}
	if out.VS != nil {
		t.Errorf("unexpected VS command while armed")
	}
}

func TestVNavArmAbove(t *testing.T) {
	v := NewVNav("N123AB")
	state := vnavState(10000, 300, 0)
	mode := descendMode(8000)

	// Well above the path with the descent point behind the target
	// distance: arm from above.
	in := descentPath(8000, 15, 25, 1500)
	in.NewPath = true
	out := v.Update(state, in, mode)

	if v.State() != PathArmedAbove {
		t.Errorf("state %s, expected armed-above", v.State())
	}
	if out.Annunciators.RequiredVS >= 0 {
		t.Errorf("required VS %f, expected a descent rate", out.Annunciators.RequiredVS)
	}
	// Level flight is shallower than any required descent: still ARMED.
	if out.PathStatus != PathStatusArmed {
		t.Errorf("path status %s, expected ARMED", out.PathStatus)
	}

	// Diving more steeply than the required rate can't catch the path.
	state.VerticalSpeed = -3000
	in.NewPath = false
	out = v.Update(state, in, mode)
	if out.PathStatus != PathStatusStandby {
		t.Errorf("path status %s, expected STANDBY while diving", out.PathStatus)
	}
}

func TestVNavArmPreference(t *testing.T) {
	v := NewVNav("N123AB")
	state := vnavState(10000, 300, 0)
	mode := descendMode(9900) // 100ft below indicated

	// 500ft of deviation with the descent point 10nm out arms (and
	// immediately captures) from below, never from above.
	in := descentPath(8000, 15, 10, 500)
	in.NewPath = true
	v.Update(state, in, mode)

	if v.State() == PathArmedAbove {
		t.Errorf("armed from above, expected below-side arming")
	}
	if v.State() != PathActive {
		t.Errorf("state %s, expected capture from the below-side window", v.State())
	}
}

func TestVNavNoArmWhileHoldingTarget(t *testing.T) {
	v := NewVNav("N123AB")
	state := vnavState(8020, 300, 0)
	mode := descendMode(8000)
	mode.VerticalMode = VerticalModeAltHold
	mode.LockedAltitude = 8040 // rounds to the path target

	in := descentPath(8000, 15, 10, 0)
	in.NewPath = true
	out := v.Update(state, in, mode)

	if v.State() != PathInactive {
		t.Errorf("state %s, expected inactive while holding the target", v.State())
	}
	if out.PathStatus != PathStatusOff {
		t.Errorf("path status %s, expected OFF", out.PathStatus)
	}
}

func TestVNavActivationAndTracking(t *testing.T) {
	v := NewVNav("N123AB")
	state := vnavState(10000, 300, 0)
	mode := descendMode(8000)

	in := descentPath(8000, 15, 10, 1000)
	in.NewPath = true
	if out := v.Update(state, in, mode); out.PathStatus != PathStatusArmed {
		t.Fatalf("path status %s, expected ARMED", out.PathStatus)
	}

	// Deviation closes into the capture window.
	in = descentPath(8000, 14, 9, 200)
	out := v.Update(state, in, mode)
	if v.State() != PathActive {
		t.Fatalf("state %s, expected active", v.State())
	}
	if out.Altitude == nil || out.Altitude.Alt != 8000 || !out.Altitude.ForceCapture {
		t.Errorf("activation altitude command %+v, expected forced 8000", out.Altitude)
	}
	if out.PathStatus != PathStatusActive {
		t.Errorf("path status %s, expected ACTIVE", out.PathStatus)
	}
	// 200ft above the path: steepen beyond the -1592fpm path rate by
	// 200*2.1 rounded up to 500.
	if out.VS == nil {
		t.Fatalf("no VS command while active")
	}
	if gomath.Abs(float64(*out.VS+2092)) > 5 {
		t.Errorf("VS command %f, expected ~-2092", *out.VS)
	}

	// Slightly below the path: shallow instead, and the altitude target
	// stays in sync without forcing capture.
	in = descentPath(8000, 12, 7, -50)
	out = v.Update(state, in, mode)
	if out.Altitude == nil || out.Altitude.Alt != 8000 || out.Altitude.ForceCapture {
		t.Errorf("sync altitude command %+v, expected unforced 8000", out.Altitude)
	}
	if gomath.Abs(float64(*out.VS+1392)) > 5 {
		t.Errorf("VS command %f, expected ~-1392", *out.VS)
	}
}

func TestVNavNewPathGuard(t *testing.T) {
	v := NewVNav("N123AB")
	state := vnavState(9000, 300, -1500)
	mode := descendMode(5000)

	in := descentPath(8000, 15, 10, 200)
	in.NewPath = true
	v.Update(state, in, mode)
	if v.State() != PathActive {
		t.Fatalf("state %s, expected active", v.State())
	}

	// The plan recomputes with a much lower target while we're still
	// well above the new path: guidance goes quiet for the cycle instead
	// of diving for it.
	in = descentPath(5000, 30, 20, 500)
	in.NewPath = true
	out := v.Update(state, in, mode)
	if out.Altitude != nil || out.VS != nil {
		t.Errorf("commands emitted during inhibited cycle: %+v", out)
	}
	if out.PathStatus != PathStatusOff {
		t.Errorf("path status %s, expected OFF while inhibited", out.PathStatus)
	}
	if v.TargetAltitude() != 8000 {
		t.Errorf("held target %f changed during inhibited cycle", v.TargetAltitude())
	}

	// Once the deviation closes up the new path is accepted normally.
	in = descentPath(5000, 30, 20, 50)
	in.NewPath = true
	v.Update(state, in, mode)
	if v.TargetAltitude() != 5000 {
		t.Errorf("held target %f, expected 5000", v.TargetAltitude())
	}
	if v.State() == PathActive {
		t.Errorf("still active after a new path; expected re-arm from scratch")
	}
}

func TestVNavTargetReversalDeactivates(t *testing.T) {
	v := NewVNav("N123AB")
	state := vnavState(9000, 300, -1500)
	mode := descendMode(5000)

	in := descentPath(8000, 15, 10, 200)
	in.NewPath = true
	v.Update(state, in, mode)

	// The upstream target jumps back above what we were tracking.
	in = descentPath(9000, 15, 10, 200)
	out := v.Update(state, in, mode)
	if v.State() != PathInactive {
		t.Errorf("state %s, expected inactive after target reversal", v.State())
	}
	if out.Altitude == nil || out.Altitude.Alt != 8000 {
		t.Errorf("altitude command %+v, expected snap to held 8000", out.Altitude)
	}
	if out.PathStatus != PathStatusOff {
		t.Errorf("path status %s, expected OFF", out.PathStatus)
	}
}

func TestVNavConstraintPassed(t *testing.T) {
	// Far from the next descent: level off and coast.
	v := NewVNav("N123AB")
	state := vnavState(8200, 300, -1500)
	mode := descendMode(5000)

	in := descentPath(8000, 5, 2, 100)
	in.NewPath = true
	v.Update(state, in, mode)
	if v.State() != PathActive {
		t.Fatalf("state %s, expected active", v.State())
	}

	in = descentPath(6000, 20, 12, 0)
	out := v.Update(state, in, mode)
	if v.State() != PathInactive {
		t.Errorf("state %s, expected coast after passing the constraint", v.State())
	}
	if out.Altitude != nil || out.VS != nil {
		t.Errorf("unexpected commands while starting coast: %+v", out)
	}

	// Close to the next descent: fly straight through onto the new
	// target and hand the preselector to slot 2.
	v = NewVNav("N123AB")
	in = descentPath(8000, 5, 2, 100)
	in.NewPath = true
	v.Update(state, in, mode)

	in = descentPath(6000, 10, 0.5, 50)
	out = v.Update(state, in, mode)
	if v.State() != PathActive {
		t.Errorf("state %s, expected to stay active through the constraint", v.State())
	}
	if out.Altitude == nil || out.Altitude.Alt != 6000 || !out.Altitude.ForceCapture {
		t.Errorf("altitude command %+v, expected forced 6000", out.Altitude)
	}
	if out.SlotRequest == nil || *out.SlotRequest != 2 {
		t.Errorf("slot request %+v, expected 2 past the constraint", out.SlotRequest)
	}
}

func TestVNavConstraintFollowing(t *testing.T) {
	v := NewVNav("N123AB")
	state := vnavState(10000, 300, 0)

	in := VerticalGuidanceInput{
		ConstraintValid:    true,
		ConstraintAltitude: 7000,
		ConstraintFix:      "ROBER",
		Segment:            SegmentEnroute,
	}
	mode := ModeState{
		SelectedAltitude1: 8000,
		SelectedAltitude2: 6000,
		ActiveSlot:        1,
		VerticalMode:      VerticalModeVS,
	}

	out := v.Update(state, in, mode)
	if out.Altitude == nil || out.Altitude.Alt != 7000 {
		t.Errorf("altitude command %+v, expected constraint 7000", out.Altitude)
	}
	if out.PathStatus != PathStatusOff {
		t.Errorf("path status %s, expected OFF", out.PathStatus)
	}
	// Descending: the lower preselector wins slot 2.
	if out.SlotRequest == nil || *out.SlotRequest != 2 {
		t.Errorf("slot request %+v, expected 2", out.SlotRequest)
	}

	// On a departure the higher preselector wins instead: slot 1 here,
	// which is already active, so no request at all.
	v = NewVNav("N123AB")
	in.Segment = SegmentDeparture
	out = v.Update(state, in, mode)
	if out.SlotRequest != nil {
		t.Errorf("unexpected slot request %d on departure", *out.SlotRequest)
	}

	// Equal preselectors go to slot 1 in either segment.
	v = NewVNav("N123AB")
	in.Segment = SegmentEnroute
	mode.SelectedAltitude2 = 8000
	out = v.Update(state, in, mode)
	if out.SlotRequest != nil {
		t.Errorf("unexpected slot request %d with equal preselectors", *out.SlotRequest)
	}

	// Already capturing an altitude: command the constraint but leave
	// the slots alone.
	v = NewVNav("N123AB")
	mode.SelectedAltitude2 = 6000
	mode.VerticalMode = VerticalModeAltCapture
	out = v.Update(state, in, mode)
	if out.Altitude == nil || out.Altitude.Alt != 7000 {
		t.Errorf("altitude command %+v, expected constraint 7000", out.Altitude)
	}
	if out.SlotRequest != nil {
		t.Errorf("unexpected slot request %d while capturing", *out.SlotRequest)
	}
}

func TestVNavPathUnavailable(t *testing.T) {
	v := NewVNav("N123AB")
	state := vnavState(9000, 300, -1500)
	mode := descendMode(5000)

	in := descentPath(8000, 15, 10, 200)
	in.NewPath = true
	v.Update(state, in, mode)
	if v.State() != PathActive {
		t.Fatalf("state %s, expected active", v.State())
	}

	// Path drops out but a constraint remains: fall back to following it.
	in = VerticalGuidanceInput{
		ConstraintValid:    true,
		ConstraintAltitude: 7000,
		ConstraintFix:      "ROBER",
		Segment:            SegmentEnroute,
	}
	out := v.Update(state, in, mode)
	if v.State() != PathInactive {
		t.Errorf("state %s, expected inactive without a path", v.State())
	}
	if out.Altitude == nil || out.Altitude.Alt != 7000 {
		t.Errorf("altitude command %+v, expected constraint fallback 7000", out.Altitude)
	}

	// Nothing upstream at all: everything clears.
	out = v.Update(state, VerticalGuidanceInput{}, mode)
	if out.Altitude != nil || out.VS != nil || out.SlotRequest != nil {
		t.Errorf("unexpected commands with no guidance upstream: %+v", out)
	}
	if out.PathStatus != PathStatusOff {
		t.Errorf("path status %s, expected OFF", out.PathStatus)
	}
}

func TestVNavFailed(t *testing.T) {
	v := NewVNav("N123AB")
	state := vnavState(9000, 300, -1500)
	mode := descendMode(5000)

	in := descentPath(8000, 15, 10, 200)
	in.NewPath = true
	v.Update(state, in, mode)

	out := v.Failed(state)
	if v.State() != PathInactive {
		t.Errorf("state %s, expected inactive after failure", v.State())
	}
	if out.Altitude == nil || out.Altitude.Alt != 9000 || !out.Altitude.ForceCapture {
		t.Errorf("altitude command %+v, expected forced capture of indicated 9000", out.Altitude)
	}
	if out.PathStatus != PathStatusOff {
		t.Errorf("path status %s, expected OFF", out.PathStatus)
	}
}

func TestVNavArmingReevaluated(t *testing.T) {
	v := NewVNav("N123AB")
	state := vnavState(10000, 300, 0)
	mode := descendMode(8000)

	in := descentPath(8000, 15, 10, 1000)
	in.NewPath = true
	v.Update(state, in, mode)
	if v.State() != PathArmedBelow {
		t.Fatalf("state %s, expected armed-below", v.State())
	}

	// The descent point slides out of the arming window: disarm.
	in = descentPath(8000, 15, 25, 1000)
	out := v.Update(state, in, mode)
	if v.State() != PathInactive {
		t.Errorf("state %s, expected disarm once out of the window", v.State())
	}
	if out.PathStatus != PathStatusOff {
		t.Errorf("path status %s, expected OFF", out.PathStatus)
	}

	// Deviation grows past the below-side limit while the descent point
	// is beyond the target: flip to armed-above, never both.
	in = descentPath(8000, 15, 25, 1500)
	v.Update(state, in, mode)
	if v.State() != PathArmedAbove {
		t.Errorf("state %s, expected armed-above", v.State())
	}
}
