package drive

import (
	"context"
)

// sampleLoop polls the feedback analog every sample interval. A failed read flags the
// feedback as failed and leaves the estimate alone until a read succeeds again.
func (c *Controller) sampleLoop(ctx context.Context) {
	reporter := newErrorReporter(c.feedbackLogger, c.clock, "reading feedback")
	for {
		start := c.clock.Now()
		reading, err := c.feedback.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.state.FailFeedback.Store(true)
			reporter.report(err)
		} else {
			c.updateFeedback(Sample{Reading: reading.Value, Timestamp: start})
			reporter.recovered()
		}

		if !c.sleep(ctx, c.sampleInterval()-c.clock.Since(start)) {
			return
		}
	}
}

// PushSample feeds a sample from an external sensor, for controllers built with
// ExternalFeedback.
func (c *Controller) PushSample(sample Sample) {
	c.updateFeedback(sample)
}

// updateFeedback folds in a good sample. The first one after a feedback failure restarts the
// estimator, so the gap does not show up as a velocity.
func (c *Controller) updateFeedback(sample Sample) {
	if c.state.FailFeedback.Load() {
		c.estimator.Reset()
	}
	c.estimator.Update(sample)
	c.state.FailFeedback.Store(false)
}

// PushFeedbackError reports that an external sensor failed to produce a sample.
func (c *Controller) PushFeedbackError(err error) {
	if c.state.FailFeedback.Swap(true) {
		return
	}
	c.feedbackLogger.Warnw("external feedback failed", "error", err)
}
