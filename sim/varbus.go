// sim/varbus.go
// Copyright(c) 2025-2026 fms contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"sync"

	"github.com/mmp/fms/nav"
)

// VarBus is the named-variable bus the rest of the avionics reads guidance
// from. The directors never touch it; the BusAdapter translates their
// outputs into writes so that everything the guidance decides is visible
// at well-known variable names.
type VarBus interface {
	SetFloat(name string, v float32)
	SetInt(name string, v int)
	SetBool(name string, v bool)
}

// Bus variable names. Dataref-style paths, grouped by consumer: ap/ is
// what the autopilot servos and mode logic read, fms/ is FMS state for
// displays.
const (
	BusAltitudeTarget  = "ap/alt/target"
	BusAltitudeCapture = "ap/alt/capture"
	BusAltitudeSlot    = "ap/alt/slot"
	BusVSTarget        = "ap/vs/target"
	BusHeadingTarget   = "ap/hdg/target"
	BusHeadingExecute  = "ap/hdg/execute"

	BusPathStatus     = "fms/path/status"
	BusSequenceMode   = "fms/seq/mode"
	BusActiveWaypoint = "fms/seq/waypoint"

	BusProximityAlert = "fms/annun/waypoint"
	BusDiscontinuity  = "fms/annun/discontinuity"
	BusDescentPreview = "fms/annun/descent"
	BusRequiredVS     = "fms/annun/required_vs"
)

// BusAdapter writes director outputs to a VarBus. Request fields are
// forwarded only when set; status and annunciator values are refreshed
// every cycle so stale alerts don't stick on the bus.
type BusAdapter struct {
	bus VarBus
}

func NewBusAdapter(bus VarBus) *BusAdapter {
	return &BusAdapter{bus: bus}
}

func (a *BusAdapter) Apply(out nav.GuidanceOutputs) {
	if out.Altitude != nil {
		a.bus.SetFloat(BusAltitudeTarget, out.Altitude.Alt)
		a.bus.SetBool(BusAltitudeCapture, out.Altitude.ForceCapture)
	}
	if out.VS != nil {
		a.bus.SetFloat(BusVSTarget, *out.VS)
	}
	if out.Heading != nil {
		a.bus.SetFloat(BusHeadingTarget, out.Heading.Heading)
		a.bus.SetBool(BusHeadingExecute, out.Heading.Execute)
	}
	if out.SlotRequest != nil {
		a.bus.SetInt(BusAltitudeSlot, *out.SlotRequest)
	}
	if out.SequenceRequest != nil {
		a.bus.SetInt(BusSequenceMode, int(*out.SequenceRequest))
	}
	if out.Sequenced != nil {
		a.bus.SetInt(BusActiveWaypoint, *out.Sequenced)
	}

	a.bus.SetInt(BusPathStatus, int(out.PathStatus))
	a.bus.SetBool(BusProximityAlert, out.Annunciators.ProximityAlert)
	a.bus.SetBool(BusDiscontinuity, out.Annunciators.Discontinuity)
	a.bus.SetBool(BusDescentPreview, out.Annunciators.DescentPreview)
	a.bus.SetFloat(BusRequiredVS, out.Annunciators.RequiredVS)
}

// MemoryBus is a VarBus backed by maps, for tests and for the scenario
// runner where there's no real avionics bus on the other side.
type MemoryBus struct {
	mu     sync.Mutex
	floats map[string]float32
	ints   map[string]int
	bools  map[string]bool
	writes int
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		floats: make(map[string]float32),
		ints:   make(map[string]int),
		bools:  make(map[string]bool),
	}
}

func (b *MemoryBus) SetFloat(name string, v float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.floats[name] = v
	b.writes++
}

func (b *MemoryBus) SetInt(name string, v int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ints[name] = v
	b.writes++
}

func (b *MemoryBus) SetBool(name string, v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bools[name] = v
	b.writes++
}

// Float returns the last value written to the named float variable and
// whether it has ever been written.
func (b *MemoryBus) Float(name string) (float32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.floats[name]
	return v, ok
}

func (b *MemoryBus) Int(name string) (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.ints[name]
	return v, ok
}

func (b *MemoryBus) Bool(name string) (bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.bools[name]
	return v, ok
}

// Writes returns the total number of variable writes, mostly useful for
// checking that request fields aren't being rewritten every cycle.
func (b *MemoryBus) Writes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}
