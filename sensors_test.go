package stella

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/stat"
)

func TestGPSNominalAlwaysValid(t *testing.T) {
	s := NewSensors(DefaultSensorParams(), 0.1, 7)
	errs := make([]float64, 0, 1000)
	for i := 0; i < 1000; i++ {
		fix := s.MeasureGPS(100, -50, 20)
		if !fix.Valid {
			t.Fatal("unjammed GPS must always report valid")
		}
		errs = append(errs, fix.X-100)
	}
	// Zero-mean with σ=0.5: the sample mean over 1000 draws stays well within 5σ/√n.
	if mean := stat.Mean(errs, nil); math.Abs(mean) > 0.1 {
		t.Fatalf("GPS noise should be zero-mean, sample mean %f", mean)
	}
	if σ := math.Sqrt(stat.Variance(errs, nil)); σ < 0.3 || σ > 0.7 {
		t.Fatalf("GPS noise σ should be near 0.5, sample σ %f", σ)
	}
}

func TestJammedGPSNeverValid(t *testing.T) {
	s := NewSensors(DefaultSensorParams(), 0.1, 7)
	s.SetJamming(true, 0.5)
	var noSignal, gross int
	for i := 0; i < 10000; i++ {
		fix := s.MeasureGPS(0, 0, 5)
		if fix.Valid {
			t.Fatal("jammed GPS must never report a valid fix")
		}
		if math.IsNaN(fix.X) {
			noSignal++
		} else {
			gross++
		}
	}
	// Bernoulli(0.5) split between total denial and gross perturbation.
	if noSignal < 4500 || noSignal > 5500 {
		t.Fatalf("expected roughly half no-signal outcomes, got %d of 10000", noSignal)
	}
	if gross == 0 {
		t.Fatal("expected some grossly perturbed fixes to leak through")
	}
}

func TestJammedGPSFullStrength(t *testing.T) {
	s := NewSensors(DefaultSensorParams(), 0.1, 7)
	s.SetJamming(true, 1.0)
	for i := 0; i < 100; i++ {
		fix := s.MeasureGPS(0, 0, 5)
		if fix.Valid || !math.IsNaN(fix.X) {
			t.Fatal("full-strength jamming must deny every fix")
		}
	}
}

func TestJammingStrengthClamped(t *testing.T) {
	s := NewSensors(DefaultSensorParams(), 0.1, 7)
	s.SetJamming(true, 4.2)
	if s.jamStrength != 1 {
		t.Fatalf("strength should clamp to 1, got %f", s.jamStrength)
	}
	s.SetJamming(true, -2)
	if s.jamStrength != 0 {
		t.Fatalf("strength should clamp to 0, got %f", s.jamStrength)
	}
}

func TestAccelerometerSensesSpecificForce(t *testing.T) {
	params := DefaultSensorParams()
	params.AccelNoiseStd = 0 // isolate the deterministic model
	s := NewSensors(params, 0.1, 7)
	r := s.MeasureAccelerometer(1, 2, gravity)
	if !scalar.EqualWithinAbs(r.X, 1+params.AccelBiasX, 1e-12) {
		t.Fatalf("x axis: got %f", r.X)
	}
	if !scalar.EqualWithinAbs(r.Z, params.AccelBiasZ, 1e-12) {
		t.Fatalf("vertical axis must have gravity subtracted, got %f", r.Z)
	}
	if got := s.LastAccel(); got != r {
		t.Fatal("LastAccel should return the most recent sample")
	}
}

func TestGyroscopeDriftAccumulates(t *testing.T) {
	params := DefaultSensorParams()
	params.GyroNoiseStd = 0
	s := NewSensors(params, 0.1, 7)
	for i := 0; i < 100; i++ {
		s.MeasureGyroscope(0, 0, 0)
	}
	// Pure bias at 0.001 rad/s integrated over 10 s.
	if !scalar.EqualWithinAbs(s.DriftZ, 0.01, 1e-9) {
		t.Fatalf("expected 0.01 rad of accumulated drift, got %f", s.DriftZ)
	}
}

func TestMagnetometerWraps(t *testing.T) {
	params := DefaultSensorParams()
	params.MagNoiseStd = 0
	params.MagDeclination = 0.5
	s := NewSensors(params, 0.1, 7)
	h := s.MeasureMagnetometer(math.Pi - 0.1)
	if h > math.Pi || h <= -math.Pi {
		t.Fatalf("magnetometer heading %f outside (-π, π]", h)
	}
	if !scalar.EqualWithinAbs(h, math.Pi-0.1+0.5-2*math.Pi, 1e-9) {
		t.Fatalf("unexpected wrapped heading %f", h)
	}
}

func TestBarometerFloor(t *testing.T) {
	params := DefaultSensorParams()
	params.BaroBias = -10
	s := NewSensors(params, 0.1, 7)
	for i := 0; i < 100; i++ {
		if alt := s.MeasureBarometer(0.5); alt < 0 {
			t.Fatalf("barometer altitude must floor at 0, got %f", alt)
		}
	}
}

func TestOpticalFlowNoiseGrowsWithAltitude(t *testing.T) {
	low := NewSensors(DefaultSensorParams(), 0.1, 7)
	high := NewSensors(DefaultSensorParams(), 0.1, 7)
	n := 5000
	lowErr := make([]float64, n)
	highErr := make([]float64, n)
	for i := 0; i < n; i++ {
		lowErr[i] = low.MeasureOpticalFlow(3, -1, 0).VX - 3
		highErr[i] = high.MeasureOpticalFlow(3, -1, 200).VX - 3
	}
	σLow := math.Sqrt(stat.Variance(lowErr, nil))
	σHigh := math.Sqrt(stat.Variance(highErr, nil))
	// The altitude factor saturates at 2x by 100 m.
	if σHigh < 1.5*σLow {
		t.Fatalf("flow noise should roughly double at altitude: σ %f vs %f", σLow, σHigh)
	}
	if !low.MeasureOpticalFlow(0, 0, 5).Valid {
		t.Fatal("optical flow must always report valid")
	}
}

func TestSensorsDeterministicForFixedSeed(t *testing.T) {
	a := NewSensors(DefaultSensorParams(), 0.1, 99)
	b := NewSensors(DefaultSensorParams(), 0.1, 99)
	for i := 0; i < 200; i++ {
		fa := a.MeasureGPS(1, 2, 3)
		fb := b.MeasureGPS(1, 2, 3)
		if fa != fb {
			t.Fatalf("draw %d diverged: %+v vs %+v", i, fa, fb)
		}
		if a.MeasureBarometer(5) != b.MeasureBarometer(5) {
			t.Fatalf("barometer draw %d diverged", i)
		}
	}
}

func TestMeasureAllBundles(t *testing.T) {
	v := NewVehicle()
	v.SetState(10, 20, 5, 1, -1, 0, 0.3)
	s := NewSensors(DefaultSensorParams(), 0.1, 7)
	m := s.MeasureAll(v)
	if !m.GPS.Valid {
		t.Fatal("GPS should be valid when not jammed")
	}
	if !m.Flow.Valid {
		t.Fatal("optical flow should always be valid")
	}
	if math.Abs(m.BaroAltitude-5) > 5 {
		t.Fatalf("barometer way off truth: %f", m.BaroAltitude)
	}
	if math.Abs(m.GPS.X-10) > 5 || math.Abs(m.GPS.Y-20) > 5 {
		t.Fatalf("nominal GPS way off truth: (%f, %f)", m.GPS.X, m.GPS.Y)
	}
}
