package vox

import (
	"fmt"
	"log"
	"strings"

	"github.com/natefinch/lumberjack"
)

// stdLogger writes through the standard log package, which SetLogger may point at
// a rotating file.
type stdLogger struct {
	file *lumberjack.Logger
}

var logger Logger = stdLogger{}

func (s stdLogger) Logf(l Level, format string, args ...interface{}) {
	log.Printf(" "+strings.ToUpper(l.String())+" "+format, args...)
}

func (s stdLogger) Shutdown() {
	if s.file != nil {
		log.Printf("Closing log file...\n")
		s.file.Close()
	}
}

// LogConfig is the [logging] section of a TOML configuration.
type LogConfig struct {
	Logfile string
	MaxSize int    `toml:"max_log_size"` // megabytes
	MaxAge  int    `toml:"max_log_age"`  // days
	Level   string // debug, info, warning, error, or silent
}

// SetLogger applies the configured level and, if a log file is named, sends
// messages to it with rotation.
func (c *LogConfig) SetLogger() error {
	if c == nil {
		return nil
	}
	if c.Level != "" {
		l, err := ParseLevel(c.Level)
		if err != nil {
			return err
		}
		SetLogLevel(l)
	}
	if c.Logfile == "" {
		Infof("Sending log messages to stdout since no log file specified.\n")
		return nil
	}
	fmt.Printf("Sending log messages to: %s\n", c.Logfile)
	f := &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize,
		MaxAge:   c.MaxAge,
	}
	log.SetOutput(f)
	logger = stdLogger{f}
	return nil
}

// SetCustomLogger replaces the package-level logger, e.g., to capture output in tests.
// Passing nil restores logging through the standard log package.
func SetCustomLogger(l Logger) {
	if l == nil {
		logger = stdLogger{}
		return
	}
	logger = l
}
