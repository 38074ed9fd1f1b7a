// aviation/wind.go
// Copyright(c) 2025-2026 fms contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package aviation

import (
	"github.com/mmp/fms/math"
)

// Wind is an ambient wind sample.
type Wind struct {
	Vec [2]float32 `json:"vec"` // nm / second
}

// WindFromDirectionSpeed builds a sample from the conventional report
// form: the direction the wind blows from, in degrees, and its speed in
// knots.
func WindFromDirectionSpeed(dir, speed float32) Wind {
	v := math.HeadingVector(math.OppositeHeading(dir))
	return Wind{Vec: math.Scale2f(v, speed/3600)}
}

// Direction gives the direction the wind is coming from, in degrees.
func (w Wind) Direction() float32 {
	return math.OppositeHeading(math.VectorHeading(w.Vec))
}

// Speed gives the wind speed in knots.
func (w Wind) Speed() float32 {
	return math.Length2f(w.Vec) * 3600
}

func (w Wind) IsCalm() bool {
	return w.Vec[0] == 0 && w.Vec[1] == 0
}
