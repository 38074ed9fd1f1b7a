// nav/vnav.go
// Copyright(c) 2025-2026 fms contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package nav

import (
	"github.com/mmp/fms/math"
	"github.com/mmp/fms/util"
)

const (
	// Arming windows, feet and nm.
	vnavArmDeviationLimit = 1000
	vnavArmTODDistance    = 20
	vnavArmSelectedMargin = 75

	// Activation windows around the path, feet.
	vnavActivationFloor        = -300
	vnavActivationCeiling      = 1000
	vnavAboveActivationCeiling = 300

	// A fresh path whose target dropped this far below the held target
	// while we're still well above it is held off for a cycle.
	vnavNewPathGuard = 100

	vnavTargetTolerance = 100 // feet; rounded targets that differ by more are a real change
	vnavCoastDistance   = 1   // nm; farther than this past a constraint, coast to the next one

	// Vertical speed correction toward the path.
	vnavDeviationGain   = 2.1 // ft/min commanded per foot of deviation
	vnavCorrectionFloor = 100 // ft/min
	vnavMaxPathAngle    = 6   // degrees, steepest commanded correction path
)

type PathState int

const (
	PathInactive PathState = iota
	PathArmedBelow
	PathArmedAbove
	PathActive
)

func (s PathState) String() string {
	return []string{"inactive", "armed-below", "armed-above", "active"}[s]
}

// VNav is the vertical path director. Each cycle it takes the path
// geometry computed upstream and decides whether to arm, capture, or
// track the vertical path, falling back to constraint-altitude following
// when there is no path to fly. It never computes path geometry itself
// and it never writes autopilot state; everything it wants is in the
// returned GuidanceOutputs.
type VNav struct {
	Callsign string

	state              PathState
	constraintObeying  bool
	executionInhibited bool
	pastConstraint     bool

	targetAltitude float32 // held path target, rounded to the nearest 100 feet
	requiredVS     float32 // descent rate needed to join the path from above, ft/min
	desiredSlot    int     // preselector slot guidance wants active, 0 = no preference
}

func NewVNav(callsign string) *VNav {
	return &VNav{Callsign: callsign}
}

func (v *VNav) State() PathState { return v.state }

// TargetAltitude returns the held path target altitude, valid while
// armed or active.
func (v *VNav) TargetAltitude() float32 { return v.targetAltitude }

// roundAlt rounds an altitude to the nearest 100 feet.
func roundAlt(alt float32) float32 {
	return 100 * math.Floor((alt+50)/100)
}

// Update runs one vertical guidance cycle.
func (v *VNav) Update(state *AircraftState, in VerticalGuidanceInput, mode ModeState) GuidanceOutputs {
	var out GuidanceOutputs
	v.executionInhibited = false

	if !in.PathValid {
		v.suspendPath(state, in, mode, &out)
		v.reconcileSlot(mode, &out)
		return out
	}

	if in.NewPath {
		newTarget := roundAlt(in.TargetAltitude)
		if newTarget < v.targetAltitude-vnavNewPathGuard &&
			state.Altitude > newTarget+vnavNewPathGuard &&
			in.Deviation > vnavNewPathGuard {
			// The recomputed path dropped the target while we're still
			// well above the path; hold off a cycle so we don't capture
			// prematurely.
			v.executionInhibited = true
			NavLog(v.Callsign, state.Time, NavLogPath, "holding new path target %.0f, deviation %.0f",
				newTarget, in.Deviation)
			v.reconcileSlot(mode, &out)
			return out
		}
		if v.state != PathInactive {
			NavLog(v.Callsign, state.Time, NavLogPath, "new path; clearing %s", v.state)
		}
		v.state = PathInactive
		v.pastConstraint = false
		v.targetAltitude = newTarget
	}

	activating := false
	if v.state == PathActive {
		if stop := v.trackActivePath(state, in, &out); stop {
			v.reconcileSlot(mode, &out)
			return out
		}
	} else {
		v.updateArming(state, in, mode)
		activating = v.checkActivation(state, in)
	}

	if !v.executionInhibited {
		v.emitCommands(state, in, mode, activating, &out)
	}
	v.reconcileSlot(mode, &out)
	return out
}

// suspendPath handles cycles where no path is available from upstream:
// drop any armed or active state and follow the constraint altitude if
// there is one.
func (v *VNav) suspendPath(state *AircraftState, in VerticalGuidanceInput, mode ModeState, out *GuidanceOutputs) {
	if v.state != PathInactive {
		NavLog(v.Callsign, state.Time, NavLogPath, "path unavailable; clearing %s", v.state)
	}
	v.state = PathInactive
	v.pastConstraint = false
	v.requiredVS = 0

	if in.ConstraintValid {
		v.followConstraint(state, in, mode, out)
	} else {
		v.Deactivate()
	}
}

// trackActivePath watches the upstream target while the path is active.
// It returns true when the cycle should end immediately: either the
// target moved against us and we bailed out, or we passed a constraint
// with the next descent too far ahead to fly through continuously.
func (v *VNav) trackActivePath(state *AircraftState, in VerticalGuidanceInput, out *GuidanceOutputs) bool {
	newTarget := roundAlt(in.TargetAltitude)
	if newTarget == v.targetAltitude {
		return false
	}

	if newTarget > v.targetAltitude+vnavTargetTolerance {
		// The target moved back up while we were descending to it. The
		// plan changed in a way we can't track incrementally; snap the
		// altitude target to what we were flying and drop the path.
		out.Altitude = &AltitudeCommand{Alt: v.targetAltitude}
		NavLog(v.Callsign, state.Time, NavLogPath, "path target rose %.0f -> %.0f while active; deactivating",
			v.targetAltitude, newTarget)
		v.Deactivate()
		return true
	}

	// Passed the constraint.
	if in.TODDistance > vnavCoastDistance {
		NavLog(v.Callsign, state.Time, NavLogPath, "past constraint; next descent in %.1fnm, coasting",
			in.TODDistance)
		v.Deactivate()
		return true
	}

	// The next descent starts right away; fly through to the new target
	// without a level-off.
	v.targetAltitude = newTarget
	v.pastConstraint = true
	out.Altitude = &AltitudeCommand{Alt: v.targetAltitude, ForceCapture: true}
	NavLog(v.Callsign, state.Time, NavLogPath, "continuing descent to %.0f", newTarget)
	return false
}

// updateArming re-evaluates the two armed states; it runs every cycle
// that the path isn't active.
func (v *VNav) updateArming(state *AircraftState, in VerticalGuidanceInput, mode ModeState) {
	// If altitude capture/hold is already parked at the path target
	// there's nothing for the path to add; don't re-arm into it.
	if (mode.VerticalMode == VerticalModeAltCapture || mode.VerticalMode == VerticalModeAltHold) &&
		roundAlt(mode.LockedAltitude) == roundAlt(in.TargetAltitude) {
		v.state = PathInactive
		return
	}

	armOK := mode.SelectedAltitude() <= state.Altitude-vnavArmSelectedMargin ||
		(mode.LateralMode == LateralModeApproach && in.GlidePathValid)

	if in.Deviation <= vnavArmDeviationLimit {
		if armOK && in.TODDistance >= 0 && in.TODDistance < vnavArmTODDistance {
			if v.state != PathArmedBelow {
				NavLog(v.Callsign, state.Time, NavLogPath, "armed below path, tod %.1fnm", in.TODDistance)
			}
			v.state = PathArmedBelow
			return
		}
	} else if armOK && in.TODDistance > in.TargetDistance {
		if v.state != PathArmedAbove {
			NavLog(v.Callsign, state.Time, NavLogPath, "armed above path, deviation %.0f", in.Deviation)
		}
		v.state = PathArmedAbove
		return
	}

	v.state = PathInactive
	v.requiredVS = 0
}

// checkActivation captures the path from an armed state when the
// deviation closes to within the capture window. Returns true on the
// cycle the path activates.
func (v *VNav) checkActivation(state *AircraftState, in VerticalGuidanceInput) bool {
	switch v.state {
	case PathArmedBelow:
		if in.Deviation > vnavActivationFloor && in.Deviation < vnavActivationCeiling {
			v.activate(state, in)
			return true
		}

	case PathArmedAbove:
		// Recomputed every cycle so the armed/standby annunciation
		// tracks the current geometry.
		v.requiredVS = RequiredVerticalSpeed(state.Altitude-in.TargetAltitude, in.TargetDistance, state.GS)
		if in.Deviation > vnavActivationFloor && in.Deviation < vnavAboveActivationCeiling {
			v.activate(state, in)
			return true
		}
	}
	return false
}

func (v *VNav) activate(state *AircraftState, in VerticalGuidanceInput) {
	v.state = PathActive
	v.targetAltitude = roundAlt(in.TargetAltitude)
	v.requiredVS = 0
	NavLog(v.Callsign, state.Time, NavLogPath, "path active, target %.0f", v.targetAltitude)
}

// emitCommands is the execution phase: translate the state we settled on
// this cycle into commands and annunciations.
func (v *VNav) emitCommands(state *AircraftState, in VerticalGuidanceInput, mode ModeState, activating bool, out *GuidanceOutputs) {
	if v.state == PathActive {
		if out.Altitude == nil {
			out.Altitude = &AltitudeCommand{Alt: v.targetAltitude, ForceCapture: activating}
		}
		out.PathStatus = PathStatusActive
		vs := v.pathVS(state, in)
		out.VS = &vs
		if v.pastConstraint && in.Segment != SegmentDeparture {
			// Descending past a constraint; hand the preselector off to
			// slot 2 for the downstream altitude.
			v.desiredSlot = 2
		}
		v.constraintObeying = false
		return
	}

	switch v.state {
	case PathArmedBelow:
		out.PathStatus = PathStatusArmed
		out.Annunciators.DescentPreview = true

	case PathArmedAbove:
		// Armed only while the descent is still shallower than the
		// required join rate; steeper than that and the path can't be
		// caught from above.
		out.PathStatus = util.Select(state.VerticalSpeed > v.requiredVS, PathStatusArmed, PathStatusStandby)
		out.Annunciators.DescentPreview = true
		out.Annunciators.RequiredVS = v.requiredVS

	default:
		out.PathStatus = PathStatusOff
	}

	if in.ConstraintValid {
		v.followConstraint(state, in, mode, out)
	} else {
		v.constraintObeying = false
	}
}

// followConstraint commands the constraint altitude while no path is
// being flown and, when the vertical mode hasn't already begun an
// altitude capture, arbitrates which preselector slot should be active.
func (v *VNav) followConstraint(state *AircraftState, in VerticalGuidanceInput, mode ModeState, out *GuidanceOutputs) {
	if out.Altitude == nil {
		out.Altitude = &AltitudeCommand{Alt: in.ConstraintAltitude}
	}
	if !v.constraintObeying {
		NavLog(v.Callsign, state.Time, NavLogAltitude, "following constraint %.0f at %s",
			in.ConstraintAltitude, in.ConstraintFix)
	}
	v.constraintObeying = true

	switch mode.VerticalMode {
	case VerticalModePitch, VerticalModeVS, VerticalModeFLC:
		slot := 0
		if in.Segment == SegmentDeparture {
			// Climbing: the higher preselector wins slot 2.
			slot = util.Select(mode.SelectedAltitude2 > mode.SelectedAltitude1, 2, 1)
		} else {
			// Descending: the lower one does.
			slot = util.Select(mode.SelectedAltitude2 < mode.SelectedAltitude1, 2, 1)
		}
		if slot != v.desiredSlot {
			NavLog(v.Callsign, state.Time, NavLogSlot, "constraint arbitration wants slot %d", slot)
		}
		v.desiredSlot = slot
	}
}

// pathVS returns the vertical speed command while tracking the path: the
// path's own descent rate plus a correction toward it, steepening when
// above and shallowing when below.
func (v *VNav) pathVS(state *AircraftState, in VerticalGuidanceInput) float32 {
	desired := VerticalSpeedForFPA(in.DesiredFPA, state.GS)
	maxVS := math.Abs(VerticalSpeedForFPA(-vnavMaxPathAngle, state.GS))
	maxCorrection := max(vnavCorrectionFloor, maxVS-math.Abs(desired))

	correction := math.Clamp(math.Abs(in.Deviation)*vnavDeviationGain, vnavCorrectionFloor, maxCorrection)
	correction = 100 * math.Ceil(correction/100)

	if in.Deviation > 0 {
		return desired - correction
	}
	return desired + correction
}

// reconcileSlot runs at the end of every cycle regardless of the branch
// taken: if guidance wants a different preselector slot than the one
// that's active, request it. The mode selector owns the slot; we never
// set it.
func (v *VNav) reconcileSlot(mode ModeState, out *GuidanceOutputs) {
	if v.desiredSlot != 0 && v.desiredSlot != mode.ActiveSlot {
		slot := v.desiredSlot
		out.SlotRequest = &slot
	}
}

// Deactivate clears all armed and active path state and returns the
// annunciations to neutral.
func (v *VNav) Deactivate() {
	v.state = PathInactive
	v.constraintObeying = false
	v.executionInhibited = false
	v.pastConstraint = false
	v.requiredVS = 0
	v.desiredSlot = 0
}

// Failed is the hard-failure path: drop everything and command the
// current indicated altitude so the autopilot has a safe target while
// upstream recovers.
func (v *VNav) Failed(state *AircraftState) GuidanceOutputs {
	NavLog(v.Callsign, state.Time, NavLogPath, "vertical guidance failed at %.0f", state.Altitude)
	v.Deactivate()
	return GuidanceOutputs{
		Altitude:   &AltitudeCommand{Alt: state.Altitude, ForceCapture: true},
		PathStatus: PathStatusOff,
	}
}
