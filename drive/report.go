package drive

import (
	"time"

	"github.com/benbjohnson/clock"

	"go.viam.com/wavetank/logging"
)

// How often a persisting error is logged again.
const errorReminderInterval = 10 * time.Second

// errorReporter logs a repeating error once, then only as a periodic reminder while it keeps
// happening. Not safe for concurrent use; each loop owns one.
type errorReporter struct {
	logger   logging.Logger
	clock    clock.Clock
	what     string
	last     string
	reminded time.Time
}

func newErrorReporter(logger logging.Logger, clk clock.Clock, what string) *errorReporter {
	return &errorReporter{logger: logger, clock: clk, what: what}
}

func (r *errorReporter) report(err error) {
	now := r.clock.Now()
	if err.Error() != r.last {
		r.logger.Warnw("error "+r.what, "error", err)
		r.last = err.Error()
		r.reminded = now
		return
	}
	if now.Sub(r.reminded) >= errorReminderInterval {
		r.logger.Errorw("still unable to finish "+r.what, "error", err, "for", errorReminderInterval)
		r.reminded = now
	}
}

// recovered logs the end of an error streak and forgets it.
func (r *errorReporter) recovered() {
	if r.last == "" {
		return
	}
	r.logger.Infow("recovered from error "+r.what, "error", r.last)
	r.last = ""
}
