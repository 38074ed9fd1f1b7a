// sim/recorder.go
// Copyright(c) 2025-2026 fms contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mmp/fms/nav"
)

// Frame captures one guidance cycle: the inputs the directors saw and the
// outputs they produced. A recorded run can be played back to diff
// guidance behavior across changes without re-flying the scenario.
type Frame struct {
	Tick     int
	State    nav.AircraftState
	Vertical nav.VerticalGuidanceInput
	Mode     nav.ModeState
	Outputs  nav.GuidanceOutputs
}

// Recorder writes a stream of Frames as msgpack, zstd compressed. Frames
// are appended one per tick; Close must be called to flush the
// compressor.
type Recorder struct {
	zw     *zstd.Encoder
	enc    *msgpack.Encoder
	frames int
}

func NewRecorder(w io.Writer) (*Recorder, error) {
	// Favor encode speed; this runs every tick.
	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	return &Recorder{zw: zw, enc: msgpack.NewEncoder(zw)}, nil
}

func (r *Recorder) Record(f Frame) error {
	if err := r.enc.Encode(f); err != nil {
		return fmt.Errorf("failed to encode frame %d: %w", f.Tick, err)
	}
	r.frames++
	return nil
}

func (r *Recorder) Frames() int { return r.frames }

func (r *Recorder) Close() error {
	if err := r.zw.Close(); err != nil {
		return fmt.Errorf("failed to close zstd writer: %w", err)
	}
	return nil
}

// Replay reads back the frames written by a Recorder. Next returns io.EOF
// after the last frame.
type Replay struct {
	zr  *zstd.Decoder
	dec *msgpack.Decoder
}

func NewReplay(r io.Reader) (*Replay, error) {
	zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	return &Replay{zr: zr, dec: msgpack.NewDecoder(zr)}, nil
}

func (r *Replay) Next() (Frame, error) {
	var f Frame
	err := r.dec.Decode(&f)
	return f, err
}

// All reads the remaining frames through the end of the stream.
func (r *Replay) All() ([]Frame, error) {
	var frames []Frame
	for {
		f, err := r.Next()
		if err == io.EOF {
			return frames, nil
		} else if err != nil {
			return frames, fmt.Errorf("failed to decode frame: %w", err)
		}
		frames = append(frames, f)
	}
}

func (r *Replay) Close() {
	r.zr.Close()
}
