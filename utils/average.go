package utils

// RollingAverage is the mean over a fixed window of the most recent values. The window starts
// out full of zeros, so the first few averages are pulled toward zero.
type RollingAverage struct {
	window []float64
	next   int
	sum    float64
}

// NewRollingAverage returns an average over the last size values. size must be positive.
func NewRollingAverage(size int) *RollingAverage {
	return &RollingAverage{window: make([]float64, size)}
}

// NumSamples is the window size.
func (ra *RollingAverage) NumSamples() int {
	return len(ra.window)
}

// Add replaces the oldest value in the window with x.
func (ra *RollingAverage) Add(x float64) {
	ra.sum += x - ra.window[ra.next]
	ra.window[ra.next] = x
	ra.next = (ra.next + 1) % len(ra.window)
}

// Fill sets every value in the window to x.
func (ra *RollingAverage) Fill(x float64) {
	for i := range ra.window {
		ra.window[i] = x
	}
	ra.next = 0
	ra.sum = x * float64(len(ra.window))
}

// Average returns the mean of the window.
func (ra *RollingAverage) Average() float64 {
	return ra.sum / float64(len(ra.window))
}
