package control

// ExponentialFilter is a first order low pass: y = alpha*x + (1-alpha)*y. The first sample after
// a reset passes straight through.
type ExponentialFilter struct {
	Alpha  float64
	value  float64
	primed bool
}

// NewExponentialFilter returns a filter weighting each new sample by alpha.
func NewExponentialFilter(alpha float64) *ExponentialFilter {
	return &ExponentialFilter{Alpha: alpha}
}

// Next filters x and returns the new output.
func (f *ExponentialFilter) Next(x float64) float64 {
	if !f.primed {
		f.value = x
		f.primed = true
		return x
	}
	f.value = f.Alpha*x + (1-f.Alpha)*f.value
	return f.value
}

// Value returns the last output.
func (f *ExponentialFilter) Value() float64 {
	return f.value
}

// Primed reports whether a sample has been seen since the last reset.
func (f *ExponentialFilter) Primed() bool {
	return f.primed
}

// Reset forgets the filter state.
func (f *ExponentialFilter) Reset() {
	f.value = 0
	f.primed = false
}
