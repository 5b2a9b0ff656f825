package stella

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// SensorParams holds the noise and calibration characteristics of the sensor
// suite. All standard deviations are 1-sigma.
type SensorParams struct {
	GPSNoiseStd float64 // m

	// Gross perturbation applied to GPS fixes that leak through jamming.
	JamNoiseStdXY float64 // m
	JamNoiseStdZ  float64 // m

	AccelNoiseStd                      float64 // m/s²
	AccelBiasX, AccelBiasY, AccelBiasZ float64 // m/s²
	AccelScale                         float64

	GyroNoiseStd                    float64 // rad/s
	GyroBiasX, GyroBiasY, GyroBiasZ float64 // rad/s
	GyroScale                       float64

	MagNoiseStd     float64 // degrees
	MagDeclination  float64 // rad
	MagInterference float64 // rad

	BaroNoiseStd float64 // m
	BaroBias     float64 // m

	FlowNoiseStd float64 // m/s
	FlowScale    float64
}

// DefaultSensorParams returns the characteristics of a consumer-grade UAV
// sensor suite.
func DefaultSensorParams() SensorParams {
	return SensorParams{
		GPSNoiseStd:   0.5,
		JamNoiseStdXY: 50.0,
		JamNoiseStdZ:  20.0,
		AccelNoiseStd: 0.05,
		AccelBiasX:    0.01,
		AccelBiasY:    0.01,
		AccelBiasZ:    0.01,
		AccelScale:    1.0,
		GyroNoiseStd:  0.01,
		GyroBiasX:     0.001,
		GyroBiasY:     0.001,
		GyroBiasZ:     0.001,
		GyroScale:     1.0,
		MagNoiseStd:   0.1,
		BaroNoiseStd:  0.5,
		FlowNoiseStd:  0.1,
		FlowScale:     1.0,
	}
}

// GPSReading is a GPS fix. Under jamming the fix is never valid: either no
// signal at all (NaN coordinates) or a grossly perturbed position.
type GPSReading struct {
	X, Y, Z float64
	Valid   bool
}

// AxisReading is a three-axis inertial sensor sample.
type AxisReading struct {
	X, Y, Z float64
}

// FlowReading is an optical-flow horizontal velocity estimate.
type FlowReading struct {
	VX, VY float64
	Valid  bool
}

// MeasurementSet bundles one sample of every sensor for a single tick.
type MeasurementSet struct {
	GPS          GPSReading
	Accel        AxisReading
	Gyro         AxisReading
	MagHeading   float64
	BaroAltitude float64
	Flow         FlowReading
}

// Sensors derives noisy measurements from ground truth. All randomness flows
// through the injected source so that runs are reproducible for a fixed seed.
type Sensors struct {
	SensorParams

	src rand.Source
	rng *rand.Rand
	dt  float64

	jammed      bool
	jamStrength float64

	// Integrated gyroscope output, the attitude drift a pure-inertial
	// solution would accumulate. Informational only.
	DriftX, DriftY, DriftZ float64

	lastAccel AxisReading
}

// NewSensors returns a sensor suite sampling at the given timestep, seeded for
// reproducibility.
func NewSensors(params SensorParams, dt float64, seed uint64) *Sensors {
	src := rand.NewPCG(seed, seed)
	return &Sensors{
		SensorParams: params,
		src:          src,
		rng:          rand.New(src),
		dt:           dt,
	}
}

// SetJamming switches GPS denial on or off. Strength is the probability, per
// measurement, of a complete signal loss; the remainder leak through as
// grossly perturbed, still-invalid fixes. Clamped to [0, 1].
func (s *Sensors) SetJamming(jammed bool, strength float64) {
	s.jammed = jammed
	s.jamStrength = math.Max(0, math.Min(1, strength))
}

// Jammed reports whether GPS denial is active.
func (s *Sensors) Jammed() bool {
	return s.jammed
}

func (s *Sensors) gaussian(σ float64) float64 {
	return distuv.Normal{Mu: 0, Sigma: σ, Src: s.src}.Rand()
}

// MeasureGPS samples a GPS fix from the true position.
func (s *Sensors) MeasureGPS(trueX, trueY, trueZ float64) GPSReading {
	if s.jammed {
		if s.rng.Float64() < s.jamStrength {
			nan := math.NaN()
			return GPSReading{nan, nan, nan, false}
		}
		return GPSReading{
			X: trueX + s.gaussian(s.JamNoiseStdXY),
			Y: trueY + s.gaussian(s.JamNoiseStdXY),
			Z: trueZ + s.gaussian(s.JamNoiseStdZ),
		}
	}
	return GPSReading{
		X:     trueX + s.gaussian(s.GPSNoiseStd),
		Y:     trueY + s.gaussian(s.GPSNoiseStd),
		Z:     trueZ + s.gaussian(s.GPSNoiseStd),
		Valid: true,
	}
}

// MeasureAccelerometer samples specific force from the true coordinate
// acceleration: gravity is subtracted on the vertical axis before scale, bias
// and noise are applied.
func (s *Sensors) MeasureAccelerometer(ax, ay, az float64) AxisReading {
	r := AxisReading{
		X: ax*s.AccelScale + s.AccelBiasX + s.gaussian(s.AccelNoiseStd),
		Y: ay*s.AccelScale + s.AccelBiasY + s.gaussian(s.AccelNoiseStd),
		Z: (az-gravity)*s.AccelScale + s.AccelBiasZ + s.gaussian(s.AccelNoiseStd),
	}
	s.lastAccel = r
	return r
}

// LastAccel returns the most recent accelerometer sample.
func (s *Sensors) LastAccel() AxisReading {
	return s.lastAccel
}

// MeasureGyroscope samples the true angular rates and integrates its own
// output into the running drift accumulators.
func (s *Sensors) MeasureGyroscope(ωx, ωy, ωz float64) AxisReading {
	r := AxisReading{
		X: ωx*s.GyroScale + s.GyroBiasX + s.gaussian(s.GyroNoiseStd),
		Y: ωy*s.GyroScale + s.GyroBiasY + s.gaussian(s.GyroNoiseStd),
		Z: ωz*s.GyroScale + s.GyroBiasZ + s.gaussian(s.GyroNoiseStd),
	}
	s.DriftX += r.X * s.dt
	s.DriftY += r.Y * s.dt
	s.DriftZ += r.Z * s.dt
	return r
}

// MeasureMagnetometer samples the true heading, offset by the local
// declination and any interference, wrapped into (-π, π].
func (s *Sensors) MeasureMagnetometer(trueHeading float64) float64 {
	h := trueHeading + s.MagDeclination + s.MagInterference
	h += s.gaussian(s.MagNoiseStd * deg2rad)
	return wrapAngle(h)
}

// MeasureBarometer samples the true altitude, floored at ground level.
func (s *Sensors) MeasureBarometer(trueAltitude float64) float64 {
	alt := trueAltitude + s.BaroBias + s.gaussian(s.BaroNoiseStd)
	return math.Max(0, alt)
}

// MeasureOpticalFlow samples the true horizontal velocity. Feature tracking
// degrades with altitude, so the noise grows up to 2x by 100 m.
func (s *Sensors) MeasureOpticalFlow(vx, vy, altitude float64) FlowReading {
	factor := math.Min(1, altitude/100.0)
	σ := s.FlowNoiseStd * (1 + factor)
	return FlowReading{
		VX:    vx*s.FlowScale + s.gaussian(σ),
		VY:    vy*s.FlowScale + s.gaussian(σ),
		Valid: true,
	}
}

// MeasureAll samples every sensor once against the vehicle's current ground
// truth and bundles the results.
func (s *Sensors) MeasureAll(v *Vehicle) MeasurementSet {
	return MeasurementSet{
		GPS:   s.MeasureGPS(v.PosX, v.PosY, v.Altitude),
		Accel: s.MeasureAccelerometer(v.AccX, v.AccY, v.AccZ),
		// No attitude dynamics: the true angular rates are zero.
		Gyro:         s.MeasureGyroscope(0, 0, 0),
		MagHeading:   s.MeasureMagnetometer(v.Heading),
		BaroAltitude: s.MeasureBarometer(v.Altitude),
		Flow:         s.MeasureOpticalFlow(v.VelX, v.VelY, v.Altitude),
	}
}
