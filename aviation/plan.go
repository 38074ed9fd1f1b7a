// aviation/plan.go
// Copyright(c) 2025-2026 fms contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package aviation

import (
	"errors"
	"time"

	"github.com/mmp/fms/math"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var (
	ErrNoActiveLeg      = errors.New("no active flight plan leg")
	ErrInvalidPlanIndex = errors.New("waypoint index outside flight plan")
)

// FlightPlan is the guidance-facing snapshot of the route: an ordered
// sequence of waypoints, the index of the waypoint currently being
// navigated to, and a version counter that is bumped on every edit.
// Directors detect plan changes solely by version inequality and treat
// the snapshot as read-only for the duration of a cycle.
type FlightPlan struct {
	Waypoints   WaypointArray `json:"waypoints"`
	ActiveIndex int           `json:"active_index"`
	Version     int64         `json:"version"`
}

func (fp *FlightPlan) ActiveWaypoint() (*Waypoint, bool) {
	return fp.Waypoint(fp.ActiveIndex)
}

// Waypoint returns the waypoint at the given index, if there is one.
func (fp *FlightPlan) Waypoint(i int) (*Waypoint, bool) {
	if fp == nil || i < 0 || i >= len(fp.Waypoints) {
		return nil, false
	}
	return &fp.Waypoints[i], true
}

// Leg returns the endpoints of the leg that ends at the waypoint with the
// given index. The first waypoint has no inbound leg.
func (fp *FlightPlan) Leg(i int) (from, to *Waypoint, err error) {
	if i < 0 || i >= len(fp.Waypoints) {
		return nil, nil, ErrInvalidPlanIndex
	}
	if i == 0 {
		return nil, &fp.Waypoints[0], ErrNoActiveLeg
	}
	return &fp.Waypoints[i-1], &fp.Waypoints[i], nil
}

// HasNext reports whether there is a waypoint after the given index.
func (fp *FlightPlan) HasNext(i int) bool {
	return i+1 < len(fp.Waypoints)
}

// Edit applies fn to the plan and bumps the version so that directors
// resynchronize on their next cycle.
func (fp *FlightPlan) Edit(fn func(*FlightPlan)) {
	fn(fp)
	fp.Version++
}

///////////////////////////////////////////////////////////////////////////
// LegCache

type legCacheKey struct {
	version int64
	index   int
}

// LegGeometry is the per-leg quantities the lateral director needs every
// cycle; they only change when the plan is edited, so they're worth
// caching rather than recomputing at tick rate.
type LegGeometry struct {
	DTK    float32 // degrees true
	Length float32 // nm
}

// LegCache memoizes LegGeometry keyed by (plan version, waypoint index).
// The LRU bound keeps memory fixed across plan edits without explicit
// invalidation; entries for stale versions simply age out.
type LegCache struct {
	lru *expirable.LRU[legCacheKey, LegGeometry]
}

func NewLegCache() *LegCache {
	return &LegCache{lru: expirable.NewLRU[legCacheKey, LegGeometry](64, nil, 10*time.Minute)}
}

// Geometry returns the desired track and length for the leg ending at
// waypoint i of the plan.
func (lc *LegCache) Geometry(fp *FlightPlan, i int, nmPerLongitude float32) (LegGeometry, error) {
	key := legCacheKey{version: fp.Version, index: i}
	if geo, ok := lc.lru.Get(key); ok {
		return geo, nil
	}

	from, to, err := fp.Leg(i)
	if err != nil {
		return LegGeometry{}, err
	}

	geo := LegGeometry{
		DTK:    math.Heading2LL(from.Location, to.Location, nmPerLongitude, 0),
		Length: math.NMDistance2LL(from.Location, to.Location),
	}
	lc.lru.Add(key, geo)
	return geo, nil
}

///////////////////////////////////////////////////////////////////////////
// constraints

// ConstraintAhead finds the altitude to cross the next constrained
// waypoint at, working backwards from the last restriction at or after
// fromIdx so that earlier crossings don't preclude meeting later ones.
// Returns the altitude, the waypoint's fix, and whether any restriction
// was found.
func ConstraintAhead(fp *FlightPlan, fromIdx int, alt float32) (float32, string, bool) {
	// Find the last constrained waypoint and seed the feasible range from
	// its restriction.
	lastWp := -1
	for i := len(fp.Waypoints) - 1; i >= fromIdx && i >= 0; i-- {
		if fp.Waypoints[i].AltitudeRestriction() != nil {
			lastWp = i
			break
		}
	}
	if lastWp == -1 {
		return 0, "", false
	}

	fix := ""
	r := fp.Waypoints[lastWp].AltRestriction.Range
	for i := lastWp - 1; i >= fromIdx && i >= 0; i-- {
		ar := fp.Waypoints[i].AltitudeRestriction()
		if ar == nil {
			continue
		}
		// Tighten the range to satisfy this restriction as well; if they
		// don't overlap, the nearer one wins and the range restarts.
		if c, ok := ar.ClampRange(r); ok {
			r = c
		} else {
			r = ar.Range
		}
		fix = fp.Waypoints[i].Fix
	}
	if fix == "" {
		fix = fp.Waypoints[lastWp].Fix
	}

	return AltitudeRestriction{Range: r}.TargetAltitude(alt), fix, true
}
