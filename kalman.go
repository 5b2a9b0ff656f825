package stella

import (
	"errors"
	"fmt"
	"math"
)

// Filter tuning. Process noise is small for position and larger for velocity
// since unmodeled accelerations are the dominant error source.
const (
	initialPosVariance = 100.0
	initialVelVariance = 10.0
	processNoisePos    = 0.001
	processNoiseVel    = 0.01
	gpsMeasurementStd  = 0.5 // m
	flowMeasurementStd = 0.2 // m/s
)

// Navigator is a discrete-time linear Kalman filter over the state
// [x, y, vx, vy] under a constant-velocity transition model. It fuses GPS
// position fixes and optical-flow velocity estimates.
type Navigator struct {
	state *Matrix // 4x1 [x, y, vx, vy]ᵗ
	p     *Matrix // 4x4 covariance
	f     *Matrix // state transition
	q     *Matrix // process noise

	dt float64

	// SymmetrizeCovariance projects the covariance back onto its symmetric
	// part after each update. The plain (I-KH)P form can accumulate asymmetry
	// over long runs; this is off by default to keep the standard behavior.
	SymmetrizeCovariance bool

	// TimeSinceGPS is the elapsed prediction time since the last accepted
	// GPS fix.
	TimeSinceGPS float64
}

// NewNavigator returns a filter at the origin with large initial position
// uncertainty, predicting with the given timestep.
func NewNavigator(dt float64) *Navigator {
	n := &Navigator{
		state: NewMatrix(4, 1),
		p:     NewMatrix(4, 4),
		f:     Identity(4),
		q:     NewMatrix(4, 4),
		dt:    dt,
	}
	n.p.Set(0, 0, initialPosVariance)
	n.p.Set(1, 1, initialPosVariance)
	n.p.Set(2, 2, initialVelVariance)
	n.p.Set(3, 3, initialVelVariance)

	// Constant-velocity model: position += velocity*dt.
	n.f.Set(0, 2, dt)
	n.f.Set(1, 3, dt)

	n.q.Set(0, 0, processNoisePos)
	n.q.Set(1, 1, processNoisePos)
	n.q.Set(2, 2, processNoiseVel)
	n.q.Set(3, 3, processNoiseVel)
	return n
}

// SetState overwrites the state estimate, leaving the covariance untouched.
func (n *Navigator) SetState(x, y, vx, vy float64) {
	n.state.Set(0, 0, x)
	n.state.Set(1, 0, y)
	n.state.Set(2, 0, vx)
	n.state.Set(3, 0, vy)
}

// State returns the current estimate as (x, y, vx, vy).
func (n *Navigator) State() (x, y, vx, vy float64) {
	return n.state.At(0, 0), n.state.At(1, 0), n.state.At(2, 0), n.state.At(3, 0)
}

// Covariance returns a copy of the covariance matrix.
func (n *Navigator) Covariance() *Matrix {
	return n.p.Clone()
}

// Predict propagates the state and covariance one step through the
// constant-velocity model: x ← Fx, P ← FPFᵗ + Q. The shapes are fixed at
// construction so this cannot fail.
func (n *Navigator) Predict() {
	x, err := Multiply(n.f, n.state)
	if err != nil {
		panic(fmt.Errorf("predict: %w", err))
	}
	n.state = x

	fp, err := Multiply(n.f, n.p)
	if err != nil {
		panic(fmt.Errorf("predict: %w", err))
	}
	fpft, err := Multiply(fp, n.f.Transpose())
	if err != nil {
		panic(fmt.Errorf("predict: %w", err))
	}
	p, err := Add(fpft, n.q)
	if err != nil {
		panic(fmt.Errorf("predict: %w", err))
	}
	n.p = p

	n.TimeSinceGPS += n.dt
}

// UpdateGPS corrects the position components with a GPS fix. Matrix failures
// propagate to the caller; the filter state is left untouched on error. The
// altitude channel is not part of the planar state and is ignored.
func (n *Navigator) UpdateGPS(gpsX, gpsY, gpsZ float64) error {
	h := NewMatrix(2, 4)
	h.Set(0, 0, 1)
	h.Set(1, 1, 1)

	r := NewMatrix(2, 2)
	r.Set(0, 0, gpsMeasurementStd*gpsMeasurementStd)
	r.Set(1, 1, gpsMeasurementStd*gpsMeasurementStd)

	z := NewMatrix(2, 1)
	z.Set(0, 0, gpsX)
	z.Set(1, 0, gpsY)

	if err := n.correct(h, r, z); err != nil {
		return fmt.Errorf("gps update: %w", err)
	}
	n.TimeSinceGPS = 0
	return nil
}

// UpdateOpticalFlow corrects the velocity components with an optical-flow
// estimate. Flow is a secondary correction: a singular innovation covariance
// skips the update instead of halting the filter.
func (n *Navigator) UpdateOpticalFlow(flowVX, flowVY float64) error {
	h := NewMatrix(2, 4)
	h.Set(0, 2, 1)
	h.Set(1, 3, 1)

	r := NewMatrix(2, 2)
	r.Set(0, 0, flowMeasurementStd*flowMeasurementStd)
	r.Set(1, 1, flowMeasurementStd*flowMeasurementStd)

	z := NewMatrix(2, 1)
	z.Set(0, 0, flowVX)
	z.Set(1, 0, flowVY)

	if err := n.correct(h, r, z); err != nil {
		if errors.Is(err, ErrSingularMatrix) {
			return nil
		}
		return fmt.Errorf("optical flow update: %w", err)
	}
	return nil
}

// correct applies the standard Kalman update for a 2-row observation:
// K = PHᵗ(HPHᵗ+R)⁻¹, x ← x + K(z - Hx), P ← (I-KH)P.
// The state is only mutated once every intermediate product has succeeded.
func (n *Navigator) correct(h, r, z *Matrix) error {
	ht := h.Transpose()
	hp, err := Multiply(h, n.p)
	if err != nil {
		return err
	}
	hpht, err := Multiply(hp, ht)
	if err != nil {
		return err
	}
	innovCov, err := Add(hpht, r)
	if err != nil {
		return err
	}
	innovCovInv, err := innovCov.Invert()
	if err != nil {
		return err
	}
	pht, err := Multiply(n.p, ht)
	if err != nil {
		return err
	}
	gain, err := Multiply(pht, innovCovInv)
	if err != nil {
		return err
	}

	hx, err := Multiply(h, n.state)
	if err != nil {
		return err
	}
	innovation, err := Subtract(z, hx)
	if err != nil {
		return err
	}
	ky, err := Multiply(gain, innovation)
	if err != nil {
		return err
	}
	state, err := Add(n.state, ky)
	if err != nil {
		return err
	}

	kh, err := Multiply(gain, h)
	if err != nil {
		return err
	}
	iMinusKH, err := Subtract(Identity(4), kh)
	if err != nil {
		return err
	}
	p, err := Multiply(iMinusKH, n.p)
	if err != nil {
		return err
	}

	n.state = state
	n.p = p
	if n.SymmetrizeCovariance {
		n.p.symmetrize()
	}
	return nil
}

// UpdateDeadReckoning propagates the planar state from an accelerometer
// sample alone, inflating the covariance diagonal by 1% per step to reflect
// the open-loop drift.
func (n *Navigator) UpdateDeadReckoning(accelX, accelY float64) {
	x, y, vx, vy := n.State()
	dx := vx*n.dt + 0.5*accelX*n.dt*n.dt
	dy := vy*n.dt + 0.5*accelY*n.dt*n.dt
	n.SetState(x+dx, y+dy, vx+accelX*n.dt, vy+accelY*n.dt)
	for i := 0; i < 4; i++ {
		n.p.Set(i, i, n.p.At(i, i)*1.01)
	}
}

// Confidence maps the total uncertainty onto a [0, 1] score. It is a bounded
// heuristic, not a calibrated probability.
func (n *Navigator) Confidence() float64 {
	return math.Max(0, 1-n.p.Trace()/100)
}

// UncertaintyRMS returns the RMS of the position variance terms, an
// uncertainty proxy distinct from the actual error against ground truth.
func (n *Navigator) UncertaintyRMS() float64 {
	return math.Sqrt((n.p.At(0, 0) + n.p.At(1, 1)) / 2)
}
