package logging

// Logger logs to the appenders it holds. Every subsystem of the drive gets its own
// sublogger so log lines carry the emitting component's name.
type Logger interface {
	Sync() error

	SetLevel(level Level)
	GetLevel() Level
	// Sublogger returns a logger named after this one plus subname. It starts at this
	// logger's level and writes to the same appenders.
	Sublogger(subname string) Logger
	// With returns a logger that adds the given key value pairs to every entry.
	With(keysAndValues ...interface{}) Logger
	AddAppender(appender Appender)

	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})

	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})

	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})

	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	// Fatal variants log at error level, then exit the process.
	Fatal(args ...interface{})
	Fatalf(template string, args ...interface{})
	Fatalw(msg string, keysAndValues ...interface{})
}
