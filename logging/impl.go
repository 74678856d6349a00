package logging

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// sink is the set of appenders a logger and all of its subloggers write to.
type sink struct {
	mu        sync.RWMutex
	appenders []Appender
	inUTC     bool
}

func (s *sink) add(appender Appender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appenders = append(s.appenders, appender)
}

func (s *sink) write(entry zapcore.Entry, fields []zapcore.Field) {
	if s.inUTC {
		entry.Time = entry.Time.UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, appender := range s.appenders {
		if err := appender.Write(entry, fields); err != nil {
			fmt.Fprintln(os.Stderr, "cannot write log entry:", err)
		}
	}
}

func (s *sink) sync() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var err error
	for _, appender := range s.appenders {
		err = multierr.Combine(err, appender.Sync())
	}
	return err
}

type impl struct {
	name   string
	level  AtomicLevel
	sink   *sink
	fields []zapcore.Field
}

func newImpl(name string, level Level, inUTC bool, appenders ...Appender) *impl {
	return &impl{
		name:  name,
		level: NewAtomicLevelAt(level),
		sink:  &sink{appenders: appenders, inUTC: inUTC},
	}
}

func (imp *impl) AddAppender(appender Appender) {
	imp.sink.add(appender)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) Sync() error {
	return imp.sink.sync()
}

func (imp *impl) Sublogger(subname string) Logger {
	name := subname
	if imp.name != "" {
		name = imp.name + "." + subname
	}
	return &impl{
		name:   name,
		level:  NewAtomicLevelAt(imp.level.Get()),
		sink:   imp.sink,
		fields: imp.fields,
	}
}

func (imp *impl) With(keysAndValues ...interface{}) Logger {
	fields := make([]zapcore.Field, 0, len(imp.fields)+len(keysAndValues)/2)
	fields = append(fields, imp.fields...)
	return &impl{
		name:   imp.name,
		level:  imp.level,
		sink:   imp.sink,
		fields: append(fields, toFields(keysAndValues)...),
	}
}

// toFields pairs up keys and values. A trailing key without a value is kept with an error in
// its place so the mistake shows in the log.
func toFields(keysAndValues []interface{}) []zapcore.Field {
	fields := make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 == len(keysAndValues) {
			fields = append(fields, zap.Any(key, errors.New("unpaired log key")))
			break
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

// emit writes one entry if level is enabled. message is only called when it is. Only the
// exported logging methods call emit, so the caller two frames up is the user's code.
func (imp *impl) emit(level Level, message func() string, keysAndValues []interface{}) {
	if level < imp.level.Get() {
		return
	}
	entry := zapcore.Entry{
		Level:      level.AsZap(),
		Time:       time.Now(),
		LoggerName: imp.name,
		Message:    message(),
		Caller:     callerAt(2),
	}
	fields := imp.fields
	if len(keysAndValues) > 0 {
		fields = append(append([]zapcore.Field{}, imp.fields...), toFields(keysAndValues)...)
	}
	imp.sink.write(entry, fields)
}

func sprint(args []interface{}) func() string {
	return func() string { return fmt.Sprint(args...) }
}

func sprintf(template string, args []interface{}) func() string {
	return func() string { return fmt.Sprintf(template, args...) }
}

func literal(msg string) func() string {
	return func() string { return msg }
}

func (imp *impl) Debug(args ...interface{}) { imp.emit(DEBUG, sprint(args), nil) }
func (imp *impl) Info(args ...interface{})  { imp.emit(INFO, sprint(args), nil) }
func (imp *impl) Warn(args ...interface{})  { imp.emit(WARN, sprint(args), nil) }
func (imp *impl) Error(args ...interface{}) { imp.emit(ERROR, sprint(args), nil) }

func (imp *impl) Debugf(template string, args ...interface{}) {
	imp.emit(DEBUG, sprintf(template, args), nil)
}

func (imp *impl) Infof(template string, args ...interface{}) {
	imp.emit(INFO, sprintf(template, args), nil)
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	imp.emit(WARN, sprintf(template, args), nil)
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	imp.emit(ERROR, sprintf(template, args), nil)
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	imp.emit(DEBUG, literal(msg), keysAndValues)
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	imp.emit(INFO, literal(msg), keysAndValues)
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	imp.emit(WARN, literal(msg), keysAndValues)
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	imp.emit(ERROR, literal(msg), keysAndValues)
}

func (imp *impl) Fatal(args ...interface{}) {
	imp.emit(ERROR, sprint(args), nil)
	imp.exit()
}

func (imp *impl) Fatalf(template string, args ...interface{}) {
	imp.emit(ERROR, sprintf(template, args), nil)
	imp.exit()
}

func (imp *impl) Fatalw(msg string, keysAndValues ...interface{}) {
	imp.emit(ERROR, literal(msg), keysAndValues)
	imp.exit()
}

func (imp *impl) exit() {
	//nolint:errcheck
	imp.Sync()
	os.Exit(1)
}

// callerAt returns the file and line skip frames above its own caller.
func callerAt(skip int) zapcore.EntryCaller {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return zapcore.EntryCaller{}
	}
	caller := zapcore.EntryCaller{Defined: true, PC: pc, File: file, Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		caller.Function = fn.Name()
	}
	return caller
}
