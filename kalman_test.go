package stella

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestPredictGrowsUncertainty(t *testing.T) {
	n := NewNavigator(0.1)
	prev := n.Covariance().Trace()
	for i := 0; i < 100; i++ {
		n.Predict()
		tr := n.Covariance().Trace()
		if tr <= prev {
			t.Fatalf("dead reckoning must grow uncertainty: trace %f -> %f at step %d", prev, tr, i)
		}
		prev = tr
	}
}

func TestPredictPropagatesVelocity(t *testing.T) {
	n := NewNavigator(0.1)
	n.SetState(0, 0, 2, -1)
	n.Predict()
	x, y, vx, vy := n.State()
	if !scalar.EqualWithinAbs(x, 0.2, 1e-12) || !scalar.EqualWithinAbs(y, -0.1, 1e-12) {
		t.Fatalf("position should integrate velocity: (%f, %f)", x, y)
	}
	if vx != 2 || vy != -1 {
		t.Fatal("constant-velocity model must not change velocity")
	}
}

func TestGPSUpdateNeverGrowsUncertainty(t *testing.T) {
	n := NewNavigator(0.1)
	n.SetState(5, 5, 0, 0)
	for i := 0; i < 50; i++ {
		n.Predict()
		before := n.Covariance().Trace()
		// A measurement exactly at the estimate cannot reduce confidence.
		if err := n.UpdateGPS(5, 5, 0); err != nil {
			t.Fatal(err)
		}
		if after := n.Covariance().Trace(); after > before {
			t.Fatalf("consistent observation grew trace: %f -> %f", before, after)
		}
	}
}

func TestGPSUpdateMovesTowardMeasurement(t *testing.T) {
	n := NewNavigator(0.1)
	n.SetState(0, 0, 0, 0)
	if err := n.UpdateGPS(10, -4, 0); err != nil {
		t.Fatal(err)
	}
	x, y, _, _ := n.State()
	if x <= 0 || x > 10 {
		t.Fatalf("x should move toward the measurement, got %f", x)
	}
	if y >= 0 || y < -4 {
		t.Fatalf("y should move toward the measurement, got %f", y)
	}
	// With P0=100 against R=0.25, the gain is nearly 1.
	if x < 9 {
		t.Fatalf("high prior uncertainty should trust the fix almost fully, x = %f", x)
	}
	if n.TimeSinceGPS != 0 {
		t.Fatal("accepting a fix must reset TimeSinceGPS")
	}
}

func TestOpticalFlowUpdatesVelocityOnly(t *testing.T) {
	n := NewNavigator(0.1)
	n.SetState(1, 2, 0, 0)
	if err := n.UpdateOpticalFlow(3, -3); err != nil {
		t.Fatal(err)
	}
	x, y, vx, vy := n.State()
	if x != 1 || y != 2 {
		t.Fatalf("flow must not touch position directly: (%f, %f)", x, y)
	}
	if vx <= 0 || vy >= 0 {
		t.Fatalf("velocity should move toward the flow estimate: (%f, %f)", vx, vy)
	}
}

func TestOpticalFlowSingularSkipsUpdate(t *testing.T) {
	n := NewNavigator(0.1)
	n.SetState(1, 2, 3, 4)
	// Force the innovation covariance HPHᵗ+R to exactly zero.
	n.p.Set(2, 2, -flowMeasurementStd*flowMeasurementStd)
	n.p.Set(3, 3, -flowMeasurementStd*flowMeasurementStd)
	before := n.p.Clone()
	if err := n.UpdateOpticalFlow(30, 40); err != nil {
		t.Fatalf("a singular flow update must be swallowed, got %v", err)
	}
	x, y, vx, vy := n.State()
	if x != 1 || y != 2 || vx != 3 || vy != 4 {
		t.Fatal("a skipped update must leave the state untouched")
	}
	matricesEqual(t, n.p, before, 0)
}

func TestConfidenceBounds(t *testing.T) {
	n := NewNavigator(0.1)
	// Fresh filter: trace 220, far beyond the confidence scale.
	if c := n.Confidence(); c != 0 {
		t.Fatalf("fresh filter confidence should floor at 0, got %f", c)
	}
	for i := 0; i < 100; i++ {
		n.Predict()
		if err := n.UpdateGPS(0, 0, 0); err != nil {
			t.Fatal(err)
		}
		if err := n.UpdateOpticalFlow(0, 0); err != nil {
			t.Fatal(err)
		}
	}
	c := n.Confidence()
	if c <= 0 || c > 1 {
		t.Fatalf("converged confidence should land in (0, 1], got %f", c)
	}
}

func TestUncertaintyRMS(t *testing.T) {
	n := NewNavigator(0.1)
	if !scalar.EqualWithinAbs(n.UncertaintyRMS(), 10, 1e-12) {
		t.Fatalf("fresh filter RMS should be sqrt(100) = 10, got %f", n.UncertaintyRMS())
	}
	n.Predict()
	if err := n.UpdateGPS(0, 0, 0); err != nil {
		t.Fatal(err)
	}
	if n.UncertaintyRMS() >= 10 {
		t.Fatal("a fix should shrink the position uncertainty")
	}
}

func TestDeadReckoningPropagation(t *testing.T) {
	n := NewNavigator(0.1)
	n.SetState(0, 0, 1, 0)
	before := n.Covariance().Trace()
	n.UpdateDeadReckoning(2, 0)
	x, _, vx, _ := n.State()
	if !scalar.EqualWithinAbs(x, 1*0.1+0.5*2*0.01, 1e-12) {
		t.Fatalf("dead reckoning position integration off: %f", x)
	}
	if !scalar.EqualWithinAbs(vx, 1.2, 1e-12) {
		t.Fatalf("dead reckoning velocity integration off: %f", vx)
	}
	if after := n.Covariance().Trace(); !scalar.EqualWithinAbs(after, before*1.01, 1e-9) {
		t.Fatalf("dead reckoning should inflate the covariance 1%%: %f -> %f", before, after)
	}
}

func TestCovarianceDiagonalStaysNonNegative(t *testing.T) {
	n := NewNavigator(0.1)
	for i := 0; i < 500; i++ {
		n.Predict()
		if err := n.UpdateGPS(float64(i)*0.1, 0, 0); err != nil {
			t.Fatal(err)
		}
		if err := n.UpdateOpticalFlow(1, 0); err != nil {
			t.Fatal(err)
		}
		p := n.Covariance()
		for d := 0; d < 4; d++ {
			if p.At(d, d) < 0 {
				t.Fatalf("negative variance P(%d,%d) = %f at step %d", d, d, p.At(d, d), i)
			}
		}
	}
}

func TestSymmetrizedCovarianceStaysSymmetric(t *testing.T) {
	n := NewNavigator(0.1)
	n.SymmetrizeCovariance = true
	for i := 0; i < 200; i++ {
		n.Predict()
		if err := n.UpdateGPS(1, 1, 0); err != nil {
			t.Fatal(err)
		}
	}
	p := n.Covariance()
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			if !scalar.EqualWithinAbs(p.At(i, j), p.At(j, i), 1e-12) {
				t.Fatalf("P(%d,%d)=%g != P(%d,%d)=%g", i, j, p.At(i, j), j, i, p.At(j, i))
			}
		}
	}
}

func TestPredictUpdateCycleTracksMotion(t *testing.T) {
	// Constant-velocity target observed through noiseless "GPS": the filter
	// should lock on within a few seconds.
	n := NewNavigator(0.1)
	var trueX float64
	const vx = 2.0
	for i := 0; i < 100; i++ {
		n.Predict()
		if err := n.UpdateGPS(trueX, 0, 0); err != nil {
			t.Fatal(err)
		}
		trueX += vx * 0.1
	}
	x, _, estVX, _ := n.State()
	if math.Abs(x-trueX) > 0.5 {
		t.Fatalf("position estimate off truth: %f vs %f", x, trueX)
	}
	if math.Abs(estVX-vx) > 0.5 {
		t.Fatalf("velocity estimate off truth: %f vs %f", estVX, vx)
	}
}
