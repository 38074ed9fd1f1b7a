// sim/scenario.go
// Copyright(c) 2025-2026 fms contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	av "github.com/mmp/fms/aviation"
	"github.com/mmp/fms/log"
	"github.com/mmp/fms/math"
	"github.com/mmp/fms/nav"
	"github.com/mmp/fms/util"
)

// Scenario is a scripted guidance run: a flight plan, time-keyed
// telemetry for the aircraft, and the vertical path geometry the
// trajectory predictor would have produced. Telemetry interpolates
// between rows; mode and path rows hold until the next row.
type Scenario struct {
	Name     string `json:"name"`
	Callsign string `json:"callsign"`

	MagneticVariation float32   `json:"magnetic_variation,omitempty"`
	NmPerLongitude    float32   `json:"nm_per_longitude,omitempty"` // derived from the route if omitted
	StartTime         time.Time `json:"start_time,omitempty"`
	Ticks             int       `json:"ticks,omitempty"` // defaults to the last telemetry tick

	ActiveIndex int                `json:"active_index"`
	Waypoints   []ScenarioWaypoint `json:"waypoints"`

	Telemetry  []TelemetryRow  `json:"telemetry"`
	Trajectory []TrajectoryRow `json:"trajectory,omitempty"`
	Modes      []ModeRow       `json:"modes"`
}

type ScenarioWaypoint struct {
	Fix                 string        `json:"fix"`
	Location            math.Point2LL `json:"location"`
	AltitudeRestriction string        `json:"altitude_restriction,omitempty"` // e.g. "8000+", "5000-7000"
	FlyOver             bool          `json:"fly_over,omitempty"`
	Runway              bool          `json:"runway,omitempty"`
	Discontinuity       bool          `json:"discontinuity,omitempty"`
	Hold                bool          `json:"hold,omitempty"`
}

// TelemetryRow is a sensed-state sample; headings and tracks are degrees
// true. Omitted track/TAS default to heading/GS.
type TelemetryRow struct {
	Tick          int           `json:"tick"`
	Position      math.Point2LL `json:"position"`
	Altitude      float32       `json:"altitude"`
	Heading       float32       `json:"heading"`
	Track         *float32      `json:"track,omitempty"`
	GS            float32       `json:"gs"`
	TAS           *float32      `json:"tas,omitempty"`
	VerticalSpeed float32       `json:"vs,omitempty"`
	BankAngle     float32       `json:"bank,omitempty"`
	WindDirection float32       `json:"wind_direction,omitempty"`
	WindSpeed     float32       `json:"wind_speed,omitempty"`
}

type TrajectoryRow struct {
	Tick           int     `json:"tick"`
	PathValid      bool    `json:"path_valid"`
	NewPath        bool    `json:"new_path,omitempty"` // force a new-path presentation even if the targets match
	TargetAltitude float32 `json:"target_altitude,omitempty"`
	TargetDistance float32 `json:"target_distance,omitempty"`
	TODDistance    float32 `json:"tod_distance,omitempty"`
	Deviation      float32 `json:"deviation,omitempty"`
	DesiredFPA     float32 `json:"fpa,omitempty"`
	GlidePathValid bool    `json:"glide_path_valid,omitempty"`
	GlidePathAngle float32 `json:"glide_path_angle,omitempty"`
	Segment        string  `json:"segment,omitempty"` // departure, enroute, arrival
}

type ModeRow struct {
	Tick              int     `json:"tick"`
	SelectedAltitude1 float32 `json:"selected_altitude1"`
	SelectedAltitude2 float32 `json:"selected_altitude2,omitempty"`
	ActiveSlot        int     `json:"active_slot"`
	LockedAltitude    float32 `json:"locked_altitude,omitempty"`
	VerticalMode      string  `json:"vertical_mode"` // PIT, VS, FLC, ALTS, ALT, PATH
	LateralMode       string  `json:"lateral_mode"`  // ROL, HDG, NAV, APR
}

// LoadScenario reads and validates a scenario file. Parsed scenarios are
// cached so that repeated batch runs don't re-validate unchanged files.
func LoadScenario(path string, lg *log.Logger) (*Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	cacheKey := "scenarios/" + filepath.Base(path)
	var sc Scenario
	if t, err := util.CacheRetrieveObject(cacheKey, &sc); err == nil && t.After(info.ModTime()) {
		lg.Debugf("%s: scenario loaded from cache", path)
		return &sc, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if err := util.UnmarshalJSON(f, &sc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var e util.ErrorLogger
	e.Push(path)
	sc.PostDeserialize(&e)
	e.Pop()
	if e.HaveErrors() {
		e.PrintErrors(lg)
		return nil, fmt.Errorf("%s: scenario validation failed", path)
	}

	if err := util.CacheStoreObject(cacheKey, sc); err != nil {
		lg.Warnf("%s: unable to cache scenario: %v", path, err)
	}
	return &sc, nil
}

// PostDeserialize validates the scenario and fills in derived defaults.
func (s *Scenario) PostDeserialize(e *util.ErrorLogger) {
	if s.Callsign == "" {
		e.ErrorString("no callsign specified")
	}

	if len(s.Waypoints) < 2 {
		e.ErrorString("at least two waypoints are needed")
	}
	for _, swp := range s.Waypoints {
		e.Push("waypoint " + swp.Fix)
		if swp.Fix == "" {
			e.ErrorString("no fix name")
		}
		if swp.Location.IsZero() {
			e.ErrorString("no location")
		}
		if swp.AltitudeRestriction != "" {
			if _, err := av.ParseAltitudeRestriction(swp.AltitudeRestriction); err != nil {
				e.Error(err)
			}
		}
		e.Pop()
	}
	if s.ActiveIndex < 1 || s.ActiveIndex >= len(s.Waypoints) {
		e.ErrorString("active_index %d outside the route", s.ActiveIndex)
	}

	if s.NmPerLongitude == 0 && len(s.Waypoints) > 0 {
		s.NmPerLongitude = math.NMPerLatitude * math.Cos(math.Radians(s.Waypoints[0].Location.Latitude()))
	}

	e.Push("telemetry")
	if len(s.Telemetry) == 0 {
		e.ErrorString("no telemetry rows")
	}
	for i, row := range s.Telemetry {
		if i == 0 && row.Tick != 0 {
			e.ErrorString("first row must be at tick 0")
		}
		if i > 0 && row.Tick <= s.Telemetry[i-1].Tick {
			e.ErrorString("tick %d out of order", row.Tick)
		}
	}
	e.Pop()

	e.Push("trajectory")
	for i, row := range s.Trajectory {
		if i > 0 && row.Tick <= s.Trajectory[i-1].Tick {
			e.ErrorString("tick %d out of order", row.Tick)
		}
		if _, ok := parseSegment(row.Segment); !ok {
			e.ErrorString("tick %d: unknown segment %q", row.Tick, row.Segment)
		}
	}
	e.Pop()

	e.Push("modes")
	if len(s.Modes) == 0 {
		e.ErrorString("no mode rows")
	}
	for i, row := range s.Modes {
		if i == 0 && row.Tick != 0 {
			e.ErrorString("first row must be at tick 0")
		}
		if i > 0 && row.Tick <= s.Modes[i-1].Tick {
			e.ErrorString("tick %d out of order", row.Tick)
		}
		if _, ok := parseVerticalMode(row.VerticalMode); !ok {
			e.ErrorString("tick %d: unknown vertical mode %q", row.Tick, row.VerticalMode)
		}
		if _, ok := parseLateralMode(row.LateralMode); !ok {
			e.ErrorString("tick %d: unknown lateral mode %q", row.Tick, row.LateralMode)
		}
		if row.ActiveSlot != 1 && row.ActiveSlot != 2 {
			e.ErrorString("tick %d: active_slot must be 1 or 2", row.Tick)
		}
	}
	e.Pop()
}

// FlightPlan builds the guidance flight plan from the scenario's route.
func (s *Scenario) FlightPlan() *av.FlightPlan {
	fp := &av.FlightPlan{ActiveIndex: s.ActiveIndex, Version: 1}
	for _, swp := range s.Waypoints {
		wp := av.Waypoint{Fix: swp.Fix, Location: swp.Location}
		wp.SetFlyOver(swp.FlyOver)
		wp.SetRunway(swp.Runway)
		wp.SetEndsInDiscontinuity(swp.Discontinuity)
		if swp.Hold {
			wp.SetHold(0)
		}
		if swp.AltitudeRestriction != "" {
			if ar, err := av.ParseAltitudeRestriction(swp.AltitudeRestriction); err == nil {
				wp.SetAltitudeRestriction(*ar)
			}
		}
		fp.Waypoints = append(fp.Waypoints, wp)
	}
	return fp
}

func parseVerticalMode(s string) (nav.VerticalMode, bool) {
	switch s {
	case "PIT":
		return nav.VerticalModePitch, true
	case "VS":
		return nav.VerticalModeVS, true
	case "FLC":
		return nav.VerticalModeFLC, true
	case "ALTS":
		return nav.VerticalModeAltCapture, true
	case "ALT":
		return nav.VerticalModeAltHold, true
	case "PATH":
		return nav.VerticalModePath, true
	}
	return 0, false
}

func parseLateralMode(s string) (nav.LateralMode, bool) {
	switch s {
	case "ROL":
		return nav.LateralModeRoll, true
	case "HDG":
		return nav.LateralModeHeading, true
	case "NAV":
		return nav.LateralModeNav, true
	case "APR":
		return nav.LateralModeApproach, true
	}
	return 0, false
}

func parseSegment(s string) (nav.FlightSegment, bool) {
	switch s {
	case "departure":
		return nav.SegmentDeparture, true
	case "", "enroute":
		return nav.SegmentEnroute, true
	case "arrival":
		return nav.SegmentArrival, true
	}
	return 0, false
}

///////////////////////////////////////////////////////////////////////////
// ScenarioPlayer

// ScenarioPlayer serves a Scenario's rows through the source interfaces
// the Sim consumes.
type ScenarioPlayer struct {
	sc    *Scenario
	start time.Time
	ticks int
}

func NewScenarioPlayer(sc *Scenario) *ScenarioPlayer {
	start := sc.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	ticks := sc.Ticks
	if ticks == 0 && len(sc.Telemetry) > 0 {
		ticks = sc.Telemetry[len(sc.Telemetry)-1].Tick
	}
	return &ScenarioPlayer{sc: sc, start: start, ticks: ticks}
}

// lastRowAt returns the index of the last row whose tick is at or before
// the given tick; rows are validated to be in increasing tick order.
func lastRowAt[T any](rows []T, tick int, rowTick func(T) int) int {
	i := 0
	for i+1 < len(rows) && rowTick(rows[i+1]) <= tick {
		i++
	}
	return i
}

func (p *ScenarioPlayer) AircraftState(tick int) (nav.AircraftState, bool) {
	if tick > p.ticks || len(p.sc.Telemetry) == 0 {
		return nav.AircraftState{}, false
	}

	rows := p.sc.Telemetry
	i := lastRowAt(rows, tick, func(r TelemetryRow) int { return r.Tick })
	cur := rows[i]

	track := cur.Heading
	if cur.Track != nil {
		track = *cur.Track
	}
	tas := cur.GS
	if cur.TAS != nil {
		tas = *cur.TAS
	}

	state := nav.AircraftState{
		Time:              p.start.Add(time.Duration(tick) * time.Second),
		Position:          cur.Position,
		Altitude:          cur.Altitude,
		Heading:           cur.Heading,
		Track:             track,
		GS:                cur.GS,
		TAS:               tas,
		VerticalSpeed:     cur.VerticalSpeed,
		BankAngle:         cur.BankAngle,
		MagneticVariation: p.sc.MagneticVariation,
		NmPerLongitude:    p.sc.NmPerLongitude,
	}
	if cur.WindSpeed > 0 {
		state.Wind = av.WindFromDirectionSpeed(cur.WindDirection, cur.WindSpeed)
	}

	if i+1 < len(rows) && tick > cur.Tick {
		next := rows[i+1]
		f := float32(tick-cur.Tick) / float32(next.Tick-cur.Tick)

		nextTrack := next.Heading
		if next.Track != nil {
			nextTrack = *next.Track
		}
		nextTAS := next.GS
		if next.TAS != nil {
			nextTAS = *next.TAS
		}

		state.Position = math.Point2LL{
			math.Lerp(f, cur.Position[0], next.Position[0]),
			math.Lerp(f, cur.Position[1], next.Position[1]),
		}
		state.Altitude = math.Lerp(f, cur.Altitude, next.Altitude)
		state.GS = math.Lerp(f, cur.GS, next.GS)
		state.TAS = math.Lerp(f, tas, nextTAS)
		state.VerticalSpeed = math.Lerp(f, cur.VerticalSpeed, next.VerticalSpeed)
		state.BankAngle = math.Lerp(f, cur.BankAngle, next.BankAngle)
		// Headings interpolate through the shorter turn direction.
		state.Heading = math.NormalizeHeading(cur.Heading + f*math.HeadingSignedTurn(cur.Heading, next.Heading))
		state.Track = math.NormalizeHeading(track + f*math.HeadingSignedTurn(track, nextTrack))
	}

	state.MagneticHeading = math.TrueToMagneticHeading(state.Heading, state.MagneticVariation)
	return state, true
}

func (p *ScenarioPlayer) VerticalGuidance(tick int, state *nav.AircraftState, fp *av.FlightPlan, activeIdx int) nav.VerticalGuidanceInput {
	var vgi nav.VerticalGuidanceInput

	// Constraints come from the plan, not the script.
	if alt, fix, ok := av.ConstraintAhead(fp, activeIdx, state.Altitude); ok {
		vgi.ConstraintValid = true
		vgi.ConstraintAltitude = alt
		vgi.ConstraintFix = fix
	}

	rows := p.sc.Trajectory
	if len(rows) == 0 || rows[0].Tick > tick {
		return vgi
	}
	i := lastRowAt(rows, tick, func(r TrajectoryRow) int { return r.Tick })
	cur := rows[i]

	vgi.PathValid = cur.PathValid
	vgi.TargetAltitude = cur.TargetAltitude
	vgi.TargetDistance = cur.TargetDistance
	vgi.TODDistance = cur.TODDistance
	vgi.Deviation = cur.Deviation
	vgi.DesiredFPA = cur.DesiredFPA
	vgi.GlidePathValid = cur.GlidePathValid
	vgi.GlidePathAngle = cur.GlidePathAngle
	vgi.Segment, _ = parseSegment(cur.Segment)

	// The continuous quantities interpolate toward the next row.
	if i+1 < len(rows) && tick > cur.Tick && rows[i+1].PathValid == cur.PathValid {
		next := rows[i+1]
		f := float32(tick-cur.Tick) / float32(next.Tick-cur.Tick)
		vgi.TargetDistance = math.Lerp(f, cur.TargetDistance, next.TargetDistance)
		vgi.TODDistance = math.Lerp(f, cur.TODDistance, next.TODDistance)
		vgi.Deviation = math.Lerp(f, cur.Deviation, next.Deviation)
	}

	// A path presentation is new on the first tick of a row that changes
	// the geometry.
	if cur.PathValid && tick == cur.Tick {
		vgi.NewPath = cur.NewPath || i == 0 ||
			!rows[i-1].PathValid ||
			rows[i-1].TargetAltitude != cur.TargetAltitude ||
			rows[i-1].DesiredFPA != cur.DesiredFPA
	}

	return vgi
}

func (p *ScenarioPlayer) Modes(tick int) nav.ModeState {
	rows := p.sc.Modes
	if len(rows) == 0 {
		return nav.ModeState{ActiveSlot: 1, LateralMode: nav.LateralModeNav}
	}
	cur := rows[lastRowAt(rows, tick, func(r ModeRow) int { return r.Tick })]

	vm, _ := parseVerticalMode(cur.VerticalMode)
	lm, _ := parseLateralMode(cur.LateralMode)
	return nav.ModeState{
		SelectedAltitude1: cur.SelectedAltitude1,
		SelectedAltitude2: cur.SelectedAltitude2,
		ActiveSlot:        cur.ActiveSlot,
		LockedAltitude:    cur.LockedAltitude,
		VerticalMode:      vm,
		LateralMode:       lm,
	}
}
