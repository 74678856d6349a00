package control

import (
	"math"
	"math/rand"
	"testing"

	"go.viam.com/test"
)

func TestExponentialFilter(t *testing.T) {
	f := NewExponentialFilter(0.25)
	test.That(t, f.Primed(), test.ShouldBeFalse)

	test.That(t, f.Next(4), test.ShouldEqual, 4)
	test.That(t, f.Next(0), test.ShouldEqual, 3)
	test.That(t, f.Next(0), test.ShouldEqual, 2.25)
	test.That(t, f.Value(), test.ShouldEqual, 2.25)

	f.Reset()
	test.That(t, f.Primed(), test.ShouldBeFalse)
	test.That(t, f.Next(-1), test.ShouldEqual, -1)
}

func TestExponentialFilterStaysWithinInputRange(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for _, alpha := range []float64{0.01, 0.25, 0.95, 1} {
		f := NewExponentialFilter(alpha)
		lo, hi := math.Inf(1), math.Inf(-1)
		for i := 0; i < 1000; i++ {
			x := r.Float64()*6 - 3
			lo, hi = math.Min(lo, x), math.Max(hi, x)
			y := f.Next(x)
			test.That(t, y, test.ShouldBeGreaterThanOrEqualTo, lo-1e-12)
			test.That(t, y, test.ShouldBeLessThanOrEqualTo, hi+1e-12)
		}
	}
}
