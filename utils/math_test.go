package utils

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestClamp(t *testing.T) {
	test.That(t, Clamp(5, 0, 1), test.ShouldEqual, 1)
	test.That(t, Clamp(-5, 0, 1), test.ShouldEqual, 0)
	test.That(t, Clamp(0.5, 0, 1), test.ShouldEqual, 0.5)
	test.That(t, ClampInt(300, 1, 255), test.ShouldEqual, 255)
	test.That(t, ClampInt(0, 1, 255), test.ShouldEqual, 1)
}

func TestSign(t *testing.T) {
	test.That(t, Sign(3.2), test.ShouldEqual, 1)
	test.That(t, Sign(-0.1), test.ShouldEqual, -1)
	test.That(t, Sign(0), test.ShouldEqual, 0)
	test.That(t, Float64AlmostEqual(math.Sqrt(2)*math.Sqrt(2), 2, 1e-9), test.ShouldBeTrue)
	test.That(t, Float64AlmostEqual(1, 1.1, 1e-3), test.ShouldBeFalse)
}

func TestRollingAverage(t *testing.T) {
	ra := NewRollingAverage(2)
	test.That(t, ra.NumSamples(), test.ShouldEqual, 2)
	test.That(t, ra.Average(), test.ShouldEqual, 0)

	ra.Add(4)
	test.That(t, ra.Average(), test.ShouldEqual, 2)
	ra.Add(2)
	test.That(t, ra.Average(), test.ShouldEqual, 3)
	ra.Add(8)
	test.That(t, ra.Average(), test.ShouldEqual, 5)

	ra.Fill(1.5)
	test.That(t, ra.Average(), test.ShouldEqual, 1.5)
}
