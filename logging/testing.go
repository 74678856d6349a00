package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// testAppender logs through `tb.Log` so each line is attributed to the running test and shown
// only when it fails or runs verbose.
type testAppender struct {
	tb testing.TB
}

// NewTestAppender returns an appender writing to tb. Lines keep the caller of the logger;
// `tb.Helper` hides the appender's own frame from the location Go prepends.
func NewTestAppender(tb testing.TB) Appender {
	return &testAppender{tb}
}

func (tapp *testAppender) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	tapp.tb.Helper()
	line, err := formatEntry(entry, fields)
	tapp.tb.Log(line)
	return err
}

// Sync is a no-op.
func (tapp *testAppender) Sync() error {
	return nil
}
