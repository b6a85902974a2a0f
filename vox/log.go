package vox

import (
	"fmt"
	"strings"
	"time"
)

// Level is the severity of a log message.
type Level uint8

const (
	DebugLevel Level = iota
	InfoLevel
	WarningLevel
	ErrorLevel

	// SilentLevel as a threshold drops every message.
	SilentLevel
)

var levelNames = [...]string{"debug", "info", "warning", "error", "silent"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("level(%d)", uint8(l))
}

// ParseLevel returns the level with the given name, ignoring case.
func ParseLevel(s string) (Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i), nil
		}
	}
	return InfoLevel, fmt.Errorf("unknown log level %q", s)
}

// Logger is a sink for log messages that pass the current threshold.
type Logger interface {
	Logf(level Level, format string, args ...interface{})

	// Shutdown makes sure logs are closed.
	Shutdown()
}

// threshold is the minimum severity that will be logged.
var threshold = InfoLevel

// SetLogLevel sets the severity required for a log message to be passed to the
// logger.  SetLogLevel(SilentLevel) turns logging off.
func SetLogLevel(l Level) {
	threshold = l
}

// LogLevel returns the current severity threshold.
func LogLevel() Level {
	return threshold
}

func logf(l Level, format string, args ...interface{}) {
	if l >= threshold {
		logger.Logf(l, format, args...)
	}
}

func Debugf(format string, args ...interface{})   { logf(DebugLevel, format, args...) }
func Infof(format string, args ...interface{})    { logf(InfoLevel, format, args...) }
func Warningf(format string, args ...interface{}) { logf(WarningLevel, format, args...) }
func Errorf(format string, args ...interface{})   { logf(ErrorLevel, format, args...) }

// Shutdown closes any log file.
func Shutdown() {
	logger.Shutdown()
}

// TimeLog appends the time elapsed since NewTimeLog to each message.
//
//	timedLog := NewTimeLog()
//	...
//	timedLog.Debugf("loaded grid")  // "loaded grid: 1.2ms"
type TimeLog struct {
	start time.Time
}

func NewTimeLog() TimeLog {
	return TimeLog{time.Now()}
}

func (t TimeLog) Debugf(format string, args ...interface{}) { t.logf(DebugLevel, format, args) }
func (t TimeLog) Infof(format string, args ...interface{})  { t.logf(InfoLevel, format, args) }

func (t TimeLog) logf(l Level, format string, args []interface{}) {
	if l >= threshold {
		logger.Logf(l, format+": %s\n", append(args, t.Elapsed())...)
	}
}

// Elapsed returns the time since the TimeLog was created.
func (t TimeLog) Elapsed() time.Duration {
	return time.Since(t.start)
}
