// nav/log.go
// Copyright(c) 2025-2026 fms contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package nav

// Available logging categories
const (
	NavLogState    = "state"
	NavLogWaypoint = "waypoint"
	NavLogAltitude = "altitude"
	NavLogPath     = "path"
	NavLogHeading  = "heading"
	NavLogSequence = "sequence"
	NavLogSlot     = "slot"
	NavLogRoute    = "route"
	NavLogHold     = "hold"
)
