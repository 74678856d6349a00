package utils

import (
	"github.com/pkg/errors"
)

// NewUnknownNameError is used when a named value (a mode, a parameter) is not one of the
// accepted names.
func NewUnknownNameError(kind, name string) error {
	return errors.Errorf("unknown %s %q", kind, name)
}

// NewOutOfRangeError is used when a value falls outside of its declared bounds.
func NewOutOfRangeError(name string, value, lower, upper float64) error {
	return errors.Errorf("%s must be in [%v, %v], got %v", name, lower, upper, value)
}
