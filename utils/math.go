package utils

import (
	"math"
)

// Clamp returns value limited to the closed interval [lower, upper].
func Clamp(value, lower, upper float64) float64 {
	if value < lower {
		return lower
	}
	if value > upper {
		return upper
	}
	return value
}

// ClampInt is Clamp for ints.
func ClampInt(value, lower, upper int) int {
	if value < lower {
		return lower
	}
	if value > upper {
		return upper
	}
	return value
}

// Sign returns -1, 0 or 1 depending on the sign of x.
func Sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// Float64AlmostEqual compares two float64s and returns if the difference between them is less
// than epsilon.
func Float64AlmostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

func AbsInt(n int) int {
	if n < 0 {
		return -1 * n
	}
	return n
}

func MinInt(a, b int) int {
	if a > b {
		return b
	}
	return a
}

func Square(n float64) float64 {
	return n * n
}
