package utils

import (
	"testing"

	"go.viam.com/test"
)

func TestNewUnknownNameError(t *testing.T) {
	err := NewUnknownNameError("drive mode", "sprint")
	test.That(t, err.Error(), test.ShouldEqual, `unknown drive mode "sprint"`)
}

func TestNewOutOfRangeError(t *testing.T) {
	err := NewOutOfRangeError("kp", 2, 0, 1)
	test.That(t, err.Error(), test.ShouldEqual, "kp must be in [0, 1], got 2")
}
