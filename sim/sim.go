// sim/sim.go
// Copyright(c) 2025-2026 fms contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"log/slog"
	"time"

	av "github.com/mmp/fms/aviation"
	"github.com/mmp/fms/log"
	"github.com/mmp/fms/nav"
	"github.com/mmp/fms/util"

	"github.com/brunoga/deep"
	"github.com/goforj/godump"
)

// StateSource provides the sensed aircraft state for each guidance cycle;
// ok is false once the source is exhausted (end of a scripted scenario,
// lost telemetry, ...).
type StateSource interface {
	AircraftState(tick int) (nav.AircraftState, bool)
}

// TrajectorySource computes the vertical path geometry presented to the
// vertical director each cycle; activeIdx is the lateral director's
// current active waypoint. Guidance itself never builds descent paths;
// that happens upstream of it.
type TrajectorySource interface {
	VerticalGuidance(tick int, state *nav.AircraftState, fp *av.FlightPlan, activeIdx int) nav.VerticalGuidanceInput
}

// ModeSource reports the autopilot mode selector state.
type ModeSource interface {
	Modes(tick int) nav.ModeState
}

type Config struct {
	Callsign   string
	Plan       *av.FlightPlan
	State      StateSource
	Trajectory TrajectorySource
	Modes      ModeSource
	Holds      nav.HoldsDirector
	Bus        VarBus
	Recorder   *Recorder
}

// Sim drives the two directors from scripted or live sources, one cycle
// per Update call, and fans their outputs out to the variable bus, the
// event stream, and the recorder.
type Sim struct {
	Callsign string

	mu util.LoggingMutex

	plan       *av.FlightPlan
	state      StateSource
	trajectory TrajectorySource
	modes      ModeSource

	lnav *nav.LNav
	vnav *nav.VNav

	adapter  *BusAdapter
	recorder *Recorder

	eventStream *EventStream
	lg          *log.Logger

	tick    int
	simTime time.Time

	// Previous-cycle values so events are posted on transitions, not
	// every cycle.
	lastPathStatus    nav.PathStatus
	lastDiscontinuity bool
	lastPreview       bool
}

func NewSim(config Config, eventStream *EventStream, lg *log.Logger) *Sim {
	s := &Sim{
		Callsign:    config.Callsign,
		plan:        config.Plan,
		state:       config.State,
		trajectory:  config.Trajectory,
		modes:       config.Modes,
		lnav:        nav.NewLNav(config.Callsign, config.Holds),
		vnav:        nav.NewVNav(config.Callsign),
		recorder:    config.Recorder,
		eventStream: eventStream,
		lg:          lg,
	}
	if config.Bus != nil {
		s.adapter = NewBusAdapter(config.Bus)
	}
	return s
}

func (s *Sim) Tick() int { return s.tick }

func (s *Sim) SimTime() time.Time { return s.simTime }

func (s *Sim) PostEvent(e Event) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	s.eventStream.Post(e)
}

// Update runs one guidance cycle. It returns false once the state source
// is exhausted, without having run the directors.
func (s *Sim) Update() bool {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	state, ok := s.state.AircraftState(s.tick)
	if !ok {
		return false
	}
	s.simTime = state.Time

	// Snapshot the plan so an edit on another goroutine can't shear it
	// mid-cycle.
	plan := deep.MustCopy(*s.plan)

	mode := s.modes.Modes(s.tick)
	vgi := s.trajectory.VerticalGuidance(s.tick, &state, &plan, s.lnav.ActiveWaypointIndex())

	lateral := s.lnav.Update(&state, &plan, mode)
	vertical := s.vnav.Update(&state, vgi, mode)
	out := mergeOutputs(lateral, vertical)

	s.postGuidanceEvents(out, &plan, &vgi)

	if s.adapter != nil {
		s.adapter.Apply(out)
	}
	if s.recorder != nil {
		frame := Frame{Tick: s.tick, State: state, Vertical: vgi, Mode: mode, Outputs: out}
		if err := s.recorder.Record(frame); err != nil {
			s.lg.Errorf("failed to record frame: %v", err)
		}
	}

	s.tick++
	return true
}

// The directors populate disjoint fields: heading and sequencing are
// lateral, altitude, vertical speed, and the path are vertical.
func mergeOutputs(lateral, vertical nav.GuidanceOutputs) nav.GuidanceOutputs {
	out := vertical
	out.Heading = lateral.Heading
	out.Sequenced = lateral.Sequenced
	out.SequenceRequest = lateral.SequenceRequest
	out.Annunciators.ProximityAlert = lateral.Annunciators.ProximityAlert
	out.Annunciators.Discontinuity = lateral.Annunciators.Discontinuity
	return out
}

func (s *Sim) postGuidanceEvents(out nav.GuidanceOutputs, fp *av.FlightPlan, vgi *nav.VerticalGuidanceInput) {
	if out.Sequenced != nil {
		e := Event{
			Type:          SequencedWaypointEvent,
			Callsign:      s.Callsign,
			SimTime:       s.simTime,
			WaypointIndex: *out.Sequenced,
		}
		if wp, ok := fp.Waypoint(*out.Sequenced); ok {
			e.WaypointFix = wp.Fix
		}
		s.eventStream.Post(e)
	}
	if out.SlotRequest != nil {
		s.eventStream.Post(Event{Type: SlotChangeRequestEvent, Callsign: s.Callsign,
			SimTime: s.simTime, Slot: *out.SlotRequest})
	}
	if out.SequenceRequest != nil {
		s.eventStream.Post(Event{Type: SequenceModeEvent, Callsign: s.Callsign,
			SimTime: s.simTime, SequenceMode: *out.SequenceRequest})
	}

	if out.PathStatus != s.lastPathStatus {
		s.eventStream.Post(Event{Type: PathStatusEvent, Callsign: s.Callsign,
			SimTime: s.simTime, PathStatus: out.PathStatus})
		if s.lastPathStatus == nav.PathStatusActive && out.PathStatus == nav.PathStatusOff {
			// Dropped out of an active descent; keep the geometry that
			// caused it around for the postmortem.
			s.lg.Warn("vertical path deactivated", slog.Int("tick", s.tick),
				slog.String("input", godump.DumpStr(*vgi)))
		}
		s.lastPathStatus = out.PathStatus
	}
	if out.Annunciators.ProximityAlert {
		// Latched once per waypoint by the lateral director.
		s.eventStream.Post(Event{Type: ProximityAlertEvent, Callsign: s.Callsign,
			SimTime: s.simTime, WaypointIndex: s.lnav.ActiveWaypointIndex()})
	}
	if out.Annunciators.Discontinuity != s.lastDiscontinuity {
		if out.Annunciators.Discontinuity {
			s.eventStream.Post(Event{Type: DiscontinuityEvent, Callsign: s.Callsign,
				SimTime: s.simTime})
		}
		s.lastDiscontinuity = out.Annunciators.Discontinuity
	}
	if out.Annunciators.DescentPreview != s.lastPreview {
		if out.Annunciators.DescentPreview {
			s.eventStream.Post(Event{Type: DescentPreviewEvent, Callsign: s.Callsign,
				SimTime: s.simTime})
		}
		s.lastPreview = out.Annunciators.DescentPreview
	}
}

// SetSequenceMode passes an external sequencing mode change through to the
// lateral director; AUTO resumes navigation after a discontinuity.
func (s *Sim) SetSequenceMode(m nav.SequenceMode) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	s.lnav.SetSequenceMode(s.plan, m, s.simTime)
	s.eventStream.Post(Event{Type: SequenceModeEvent, Callsign: s.Callsign,
		SimTime: s.simTime, SequenceMode: m})
}

// EditPlan applies a flight plan edit; the version bump makes the lateral
// director resynchronize on its next cycle.
func (s *Sim) EditPlan(edit func(*av.FlightPlan)) {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	s.plan.Edit(edit)
	s.lg.Info("flight plan edited", slog.Int64("version", s.plan.Version),
		slog.Int("waypoints", len(s.plan.Waypoints)))
}

// GuidanceFailed runs the vertical director's failure path, commanding a
// hold at the present altitude, and reports the event.
func (s *Sim) GuidanceFailed() {
	s.mu.Lock(s.lg)
	defer s.mu.Unlock(s.lg)

	state, ok := s.state.AircraftState(s.tick)
	if !ok {
		return
	}
	out := s.vnav.Failed(&state)
	if s.adapter != nil {
		s.adapter.Apply(out)
	}
	s.eventStream.Post(Event{Type: StatusMessageEvent, Callsign: s.Callsign,
		SimTime: s.simTime, Message: "vertical guidance failed, holding " + state.Summary()})
	s.lastPathStatus = nav.PathStatusOff
}
