// sim/recorder_test.go
// Copyright(c) 2025-2026 fms contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"bytes"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/mmp/fms/math"
	"github.com/mmp/fms/nav"
)

func TestRecorderRoundTrip(t *testing.T) {
	vs := float32(-1500)
	slot := 2
	start := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

	frames := []Frame{
		{
			Tick: 0,
			State: nav.AircraftState{
				Time:           start,
				Position:       math.Point2LL{-73, 40.2},
				Altitude:       9000,
				Heading:        360,
				GS:             300,
				TAS:            300,
				NmPerLongitude: 45,
			},
			Vertical: nav.VerticalGuidanceInput{
				PathValid:      true,
				TargetAltitude: 8000,
				TargetDistance: 15,
				TODDistance:    5,
				Deviation:      800,
				DesiredFPA:     -3,
			},
			Mode: nav.ModeState{SelectedAltitude1: 8000, ActiveSlot: 1},
			Outputs: nav.GuidanceOutputs{
				PathStatus:   nav.PathStatusArmed,
				Annunciators: nav.Annunciators{DescentPreview: true},
			},
		},
		{
			Tick:  1,
			State: nav.AircraftState{Time: start.Add(time.Second), Altitude: 8950},
			Outputs: nav.GuidanceOutputs{
				Altitude:    &nav.AltitudeCommand{Alt: 8000, ForceCapture: true},
				VS:          &vs,
				SlotRequest: &slot,
				PathStatus:  nav.PathStatusActive,
			},
		},
	}

	var buf bytes.Buffer
	rec, err := NewRecorder(&buf)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	for _, f := range frames {
		if err := rec.Record(f); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if rec.Frames() != len(frames) {
		t.Errorf("recorded %d frames, expected %d", rec.Frames(), len(frames))
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rep, err := NewReplay(&buf)
	if err != nil {
		t.Fatalf("NewReplay: %v", err)
	}
	defer rep.Close()

	got, err := rep.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(got) != len(frames) {
		t.Fatalf("replayed %d frames, expected %d", len(got), len(frames))
	}
	for i := range frames {
		// Compare instants directly; the decoded time's location may
		// differ even though it's the same moment.
		if !got[i].State.Time.Equal(frames[i].State.Time) {
			t.Errorf("frame %d: time %v, expected %v", i, got[i].State.Time, frames[i].State.Time)
		}
		got[i].State.Time, frames[i].State.Time = time.Time{}, time.Time{}
		if !reflect.DeepEqual(got[i], frames[i]) {
			t.Errorf("frame %d: got %+v, expected %+v", i, got[i], frames[i])
		}
	}
}

func TestReplayEmptyStream(t *testing.T) {
	var buf bytes.Buffer
	rec, err := NewRecorder(&buf)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	rep, err := NewReplay(&buf)
	if err != nil {
		t.Fatalf("NewReplay: %v", err)
	}
	defer rep.Close()

	if _, err := rep.Next(); err != io.EOF {
		t.Errorf("expected io.EOF from an empty recording, got %v", err)
	}
}
