package stella

import "math"

// Physical parameters of the simulated airframe, a small quadcopter.
const (
	vehicleMass     = 2.0   // kg
	gravity         = 9.81  // m/s²
	airResistance   = 0.01  // linear damping coefficient
	maxVelocity     = 20.0  // m/s
	maxAcceleration = 15.0  // m/s²

	kpPosition = 2.0 // position control gain
	kpVelocity = 0.5 // velocity damping gain

	// headingHoldSpeed is the horizontal speed below which the heading is not
	// recomputed, to avoid jitter at near-zero speed.
	headingHoldSpeed = 0.1
)

// Vehicle holds the ground-truth kinematic state of the simulated UAV and
// advances it under applied forces. It is the only owner of the true state.
type Vehicle struct {
	PosX, PosY, Altitude float64 // m
	VelX, VelY, VelZ     float64 // m/s
	AccX, AccY, AccZ     float64 // m/s², as of the last Advance call
	Heading              float64 // rad

	Autopilot bool
	Target    *Waypoint
}

// NewVehicle returns a vehicle at rest at the origin with the autopilot engaged.
func NewVehicle() *Vehicle {
	return &Vehicle{Autopilot: true}
}

// SetState overwrites the full kinematic state.
func (v *Vehicle) SetState(x, y, alt, vx, vy, vz, heading float64) {
	v.PosX, v.PosY, v.Altitude = x, y, alt
	v.VelX, v.VelY, v.VelZ = vx, vy, vz
	v.Heading = heading
}

// SetTarget sets the autopilot target. A nil target disables steering.
func (v *Vehicle) SetTarget(wp *Waypoint) {
	v.Target = wp
}

// Speed returns the magnitude of the full 3-D velocity.
func (v *Vehicle) Speed() float64 {
	return norm3(v.VelX, v.VelY, v.VelZ)
}

// HeadingTo returns the heading from the vehicle to the waypoint.
func (v *Vehicle) HeadingTo(wp Waypoint) float64 {
	return math.Atan2(wp.Y-v.PosY, wp.X-v.PosX)
}

// DistanceTo returns the 3-D distance from the vehicle to the waypoint.
func (v *Vehicle) DistanceTo(wp Waypoint) float64 {
	return norm3(wp.X-v.PosX, wp.Y-v.PosY, wp.Z-v.Altitude)
}

// ControlForce computes the autopilot force toward the given waypoint.
// Desired velocity is proportional to the position error with velocity
// damping, clamped per axis; the resulting acceleration is clamped and scaled
// to a force. The vertical component carries gravity compensation so the
// vehicle can hold altitude.
func (v *Vehicle) ControlForce(wp Waypoint) (fx, fy, fz float64) {
	dx := wp.X - v.PosX
	dy := wp.Y - v.PosY
	dz := wp.Z - v.Altitude

	desiredVX := clamp(kpPosition*dx-kpVelocity*v.VelX, maxVelocity)
	desiredVY := clamp(kpPosition*dy-kpVelocity*v.VelY, maxVelocity)
	desiredVZ := clamp(kpPosition*dz-kpVelocity*v.VelZ, maxVelocity)

	ax := clamp((desiredVX-v.VelX)*2.0, maxAcceleration)
	ay := clamp((desiredVY-v.VelY)*2.0, maxAcceleration)
	az := clamp((desiredVZ-v.VelZ)*2.0, maxAcceleration)

	fx = ax * vehicleMass
	fy = ay * vehicleMass
	fz = az*vehicleMass + vehicleMass*gravity
	return
}

// Advance integrates the state by dt under the applied force. The vertical
// force is assumed gravity-compensated (see ControlForce), so gravity is
// subtracted back out here.
func (v *Vehicle) Advance(dt, fx, fy, fz float64) {
	v.AccX = fx/vehicleMass - airResistance*v.VelX
	v.AccY = fy/vehicleMass - airResistance*v.VelY
	v.AccZ = fz/vehicleMass - gravity

	v.VelX += v.AccX * dt
	v.VelY += v.AccY * dt
	v.VelZ += v.AccZ * dt

	// Horizontal speed cap, preserving direction.
	if speed := norm2(v.VelX, v.VelY); speed > maxVelocity {
		scale := maxVelocity / speed
		v.VelX *= scale
		v.VelY *= scale
	}

	v.PosX += v.VelX * dt
	v.PosY += v.VelY * dt
	v.Altitude += v.VelZ * dt

	// Ground contact: floor the altitude and zero any downward velocity.
	if v.Altitude < 0 {
		v.Altitude = 0
		v.VelZ = math.Max(0, v.VelZ)
	}

	if norm2(v.VelX, v.VelY) > headingHoldSpeed {
		v.Heading = math.Atan2(v.VelY, v.VelX)
	}
}

// Step advances by dt. With the autopilot active and a target set, the control
// force steers toward the target; otherwise the vehicle drifts under drag and
// gravity alone.
func (v *Vehicle) Step(dt float64) {
	if v.Autopilot && v.Target != nil {
		fx, fy, fz := v.ControlForce(*v.Target)
		v.Advance(dt, fx, fy, fz)
		return
	}
	v.Advance(dt, 0, 0, 0)
}
