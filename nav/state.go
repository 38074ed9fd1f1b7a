// nav/state.go
// Copyright(c) 2025-2026 fms contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package nav

import (
	"fmt"
	"log/slog"
	"time"

	av "github.com/mmp/fms/aviation"
	"github.com/mmp/fms/math"
)

// AircraftState is a snapshot of the aircraft sensor state that guidance
// runs against; one is provided to the directors each update cycle.
type AircraftState struct {
	Time time.Time

	Position        math.Point2LL
	Altitude        float32 // feet MSL
	Heading         float32 // true, degrees
	MagneticHeading float32 // degrees
	Track           float32 // true, degrees
	GS              float32 // knots
	TAS             float32 // knots
	VerticalSpeed   float32 // feet/minute, + -> climb
	BankAngle       float32 // degrees, + -> right

	Wind              av.Wind
	MagneticVariation float32 // degrees, + -> east
	NmPerLongitude    float32
}

func (s *AircraftState) Summary() string {
	return fmt.Sprintf("heading %03d altitude %.0f gs %.1f vs %.0f",
		int(s.MagneticHeading), s.Altitude, s.GS, s.VerticalSpeed)
}

func (s AircraftState) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("position", s.Position),
		slog.Float64("altitude", float64(s.Altitude)),
		slog.Float64("heading", float64(s.Heading)),
		slog.Float64("track", float64(s.Track)),
		slog.Float64("gs", float64(s.GS)),
		slog.Float64("vs", float64(s.VerticalSpeed)),
	)
}

///////////////////////////////////////////////////////////////////////////
// Modes

type VerticalMode int

const (
	VerticalModePitch VerticalMode = iota
	VerticalModeVS
	VerticalModeFLC
	VerticalModeAltCapture
	VerticalModeAltHold
	VerticalModePath
)

func (m VerticalMode) String() string {
	return []string{"PIT", "VS", "FLC", "ALTS", "ALT", "PATH"}[m]
}

type LateralMode int

const (
	LateralModeRoll LateralMode = iota
	LateralModeHeading
	LateralModeNav
	LateralModeApproach
)

func (m LateralMode) String() string {
	return []string{"ROL", "HDG", "NAV", "APR"}[m]
}

// ModeState reports the mode selector's current state; guidance reads it
// but never mutates it directly.
type ModeState struct {
	SelectedAltitude1 float32 // feet, preselector slot 1
	SelectedAltitude2 float32 // feet, preselector slot 2
	ActiveSlot        int     // 1 or 2
	LockedAltitude    float32 // feet, altitude currently captured or held
	VerticalMode      VerticalMode
	LateralMode       LateralMode
}

// SelectedAltitude returns the preselected altitude in the active slot.
func (m ModeState) SelectedAltitude() float32 {
	if m.ActiveSlot == 2 {
		return m.SelectedAltitude2
	}
	return m.SelectedAltitude1
}

func (m ModeState) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("vertical_mode", m.VerticalMode.String()),
		slog.String("lateral_mode", m.LateralMode.String()),
		slog.Int("active_slot", m.ActiveSlot),
		slog.Float64("sel1", float64(m.SelectedAltitude1)),
		slog.Float64("sel2", float64(m.SelectedAltitude2)))
}

///////////////////////////////////////////////////////////////////////////
// Vertical guidance input

type FlightSegment int

const (
	SegmentDeparture FlightSegment = iota
	SegmentEnroute
	SegmentArrival
)

func (s FlightSegment) String() string {
	return []string{"departure", "enroute", "arrival"}[s]
}

// VerticalGuidanceInput carries the vertical path geometry computed
// upstream from the flight plan; the vertical director consumes it but
// never computes path geometry itself.
type VerticalGuidanceInput struct {
	PathValid bool
	NewPath   bool // first cycle a recomputed path is presented

	ConstraintValid    bool
	ConstraintAltitude float32 // feet
	ConstraintFix      string

	TargetAltitude float32 // feet, altitude of the next path target
	TargetDistance float32 // nm to the target fix
	TODDistance    float32 // nm to top of descent, negative when past
	Deviation      float32 // feet, + -> above path
	DesiredFPA     float32 // degrees, negative descending

	GlidePathValid bool
	GlidePathAngle float32 // degrees

	Segment FlightSegment
}

func (v VerticalGuidanceInput) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("path_valid", v.PathValid),
		slog.Float64("target_alt", float64(v.TargetAltitude)),
		slog.Float64("target_dist", float64(v.TargetDistance)),
		slog.Float64("tod_dist", float64(v.TODDistance)),
		slog.Float64("deviation", float64(v.Deviation)),
		slog.Float64("fpa", float64(v.DesiredFPA)))
}

///////////////////////////////////////////////////////////////////////////
// Holds

type HoldStatus int

const (
	HoldNone HoldStatus = iota // no hold at the active waypoint
	HoldEntry
	HoldEstablished
	HoldExiting
	HoldExited
)

func (h HoldStatus) String() string {
	return []string{"none", "entry", "established", "exiting", "exited"}[h]
}

// HoldsDirector flies holding patterns. The lateral director consults it
// when the active waypoint carries a hold and suspends its own guidance
// until the hold reports that it is no longer flying the aircraft.
type HoldsDirector interface {
	UpdateHold(state *AircraftState, fp *av.FlightPlan) HoldStatus
}

///////////////////////////////////////////////////////////////////////////
// Outputs

type PathStatus int

const (
	PathStatusOff PathStatus = iota
	PathStatusArmed
	PathStatusStandby // armed from above; guidance can't yet catch the path
	PathStatusActive
)

func (s PathStatus) String() string {
	return []string{"OFF", "ARMED", "STANDBY", "ACTIVE"}[s]
}

type SequenceMode int

const (
	SequenceAuto SequenceMode = iota
	SequenceInhibit
)

func (m SequenceMode) String() string {
	return []string{"AUTO", "INHIBIT"}[m]
}

// AltitudeCommand is a requested altitude target; ForceCapture asks the
// mode selector to engage capture immediately rather than arming it.
type AltitudeCommand struct {
	Alt          float32
	ForceCapture bool
}

// HeadingCommand is a requested heading in degrees magnetic. When Execute
// is false the value is advisory: it updates the displayed course but the
// autopilot should not steer to it.
type HeadingCommand struct {
	Heading float32
	Execute bool
}

type Annunciators struct {
	ProximityAlert bool    // nearing the active waypoint
	Discontinuity  bool    // lateral guidance suspended at a route discontinuity
	DescentPreview bool    // vertical path armed, descent ahead
	RequiredVS     float32 // feet/minute needed to join the path from above, 0 if n/a
}

// GuidanceOutputs is everything a director wants changed this cycle. Nil
// pointer fields mean "no request"; the directors never reach into the
// autopilot or mode selector directly.
type GuidanceOutputs struct {
	Altitude        *AltitudeCommand
	VS              *float32 // feet/minute
	Heading         *HeadingCommand
	SlotRequest     *int          // request to switch the preselector slot
	SequenceRequest *SequenceMode // director-initiated sequencing mode change
	Sequenced       *int          // index of the waypoint just made active

	PathStatus   PathStatus
	Annunciators Annunciators
}

func (g GuidanceOutputs) LogValue() slog.Value {
	var attrs []slog.Attr
	if g.Altitude != nil {
		attrs = append(attrs, slog.Float64("altitude", float64(g.Altitude.Alt)),
			slog.Bool("force_capture", g.Altitude.ForceCapture))
	}
	if g.VS != nil {
		attrs = append(attrs, slog.Float64("vs", float64(*g.VS)))
	}
	if g.Heading != nil {
		attrs = append(attrs, slog.Float64("heading", float64(g.Heading.Heading)),
			slog.Bool("execute", g.Heading.Execute))
	}
	if g.SlotRequest != nil {
		attrs = append(attrs, slog.Int("slot_request", *g.SlotRequest))
	}
	if g.SequenceRequest != nil {
		attrs = append(attrs, slog.String("sequence_request", g.SequenceRequest.String()))
	}
	if g.Sequenced != nil {
		attrs = append(attrs, slog.Int("sequenced", *g.Sequenced))
	}
	attrs = append(attrs, slog.String("path_status", g.PathStatus.String()))
	return slog.GroupValue(attrs...)
}
