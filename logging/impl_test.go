package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.viam.com/test"
)

type gains struct {
	Kp float64
	Ki float64
	kd float64
}

// logLine splits one line written by a ConsoleAppender into its tab separated columns.
func logLine(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()
	line, err := buf.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	return strings.Split(strings.TrimSuffix(line, "\n"), "\t")
}

func fieldsOf(t *testing.T, column string) map[string]any {
	t.Helper()
	fields := map[string]any{}
	test.That(t, json.Unmarshal([]byte(column), &fields), test.ShouldBeNil)
	return fields
}

func TestConsoleOutputFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newImpl("", DEBUG, false, NewWriterAppender(buf))

	logger.Info("drive started")
	cols := logLine(t, buf)
	test.That(t, cols, test.ShouldHaveLength, 4)
	test.That(t, len(cols[0]), test.ShouldEqual, len("2026-10-19T09:12:09.459-0400"))
	test.That(t, cols[1], test.ShouldEqual, "INFO")
	file, _, found := strings.Cut(cols[2], ":")
	test.That(t, found, test.ShouldBeTrue)
	test.That(t, file, test.ShouldEqual, "logging/impl_test.go")
	test.That(t, cols[3], test.ShouldEqual, "drive started")

	logger.Warnf("speed %s unavailable", "step")
	cols = logLine(t, buf)
	test.That(t, cols[1], test.ShouldEqual, "WARN")
	test.That(t, cols[3], test.ShouldEqual, "speed step unavailable")

	// Only exported struct fields are encoded.
	logger.Debugw("pid configured", "mode", "center", "gains", gains{Kp: 1.5, kd: 2})
	cols = logLine(t, buf)
	test.That(t, cols, test.ShouldHaveLength, 5)
	test.That(t, cols[3], test.ShouldEqual, "pid configured")
	test.That(t, fieldsOf(t, cols[4]), test.ShouldResemble, map[string]any{
		"mode":  "center",
		"gains": map[string]any{"Kp": 1.5, "Ki": 0.0},
	})
}

func TestLevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newImpl("", WARN, false, NewWriterAppender(buf))

	logger.Debug("dropped")
	logger.Info("dropped")
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	logger.Warnw("emergency stop", "mode", "wave")
	test.That(t, buf.String(), test.ShouldContainSubstring, "WARN")
	test.That(t, buf.String(), test.ShouldContainSubstring, `{"mode":"wave"}`)

	logger.SetLevel(DEBUG)
	buf.Reset()
	logger.Debugf("tick %d", 3)
	test.That(t, buf.String(), test.ShouldContainSubstring, "tick 3")
}

func TestSubloggerNames(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newImpl("drive", INFO, false, NewWriterAppender(buf))

	sub := logger.Sublogger("modes")
	sub.Info("entering stop")
	cols := logLine(t, buf)
	test.That(t, cols[2], test.ShouldEqual, "drive.modes")

	// Subloggers carry their own level but share the parent's appenders.
	sub.SetLevel(ERROR)
	test.That(t, logger.GetLevel(), test.ShouldEqual, INFO)
	other := &bytes.Buffer{}
	logger.AddAppender(NewWriterAppender(other))
	sub.Error("fault")
	test.That(t, other.String(), test.ShouldContainSubstring, "fault")
}

func TestWith(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newImpl("", INFO, false, NewWriterAppender(buf))

	withMode := logger.With("mode", "wave")
	withMode.Infow("step", "v", 0.25)
	cols := logLine(t, buf)
	test.That(t, fieldsOf(t, cols[4]), test.ShouldResemble, map[string]any{"mode": "wave", "v": 0.25})

	// The parent is unchanged.
	logger.Info("plain")
	test.That(t, logLine(t, buf), test.ShouldHaveLength, 4)

	// A key without a value still shows up.
	logger.Infow("odd", "dangling")
	cols = logLine(t, buf)
	test.That(t, fieldsOf(t, cols[4]), test.ShouldContainKey, "dangling")
}

func TestObservedTestLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.With("loop", "modes").Errorw("fault in control loop", "mode", "center")

	test.That(t, logs.FilterMessageSnippet("fault").Len(), test.ShouldEqual, 1)
	entry := logs.All()[0]
	test.That(t, entry.ContextMap()["mode"], test.ShouldEqual, "center")
	test.That(t, entry.ContextMap()["loop"], test.ShouldEqual, "modes")
}

func TestLevelFromString(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"Warn", WARN},
		{"warning", WARN},
		{"error", ERROR},
	} {
		level, err := LevelFromString(tc.in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, tc.expected)
	}

	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
}
