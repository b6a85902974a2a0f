package vox

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/DmitriyVTitov/size"
	"github.com/dustin/go-humanize"
)

const (
	Kilo = 1 << 10
	Mega = 1 << 20
	Giga = 1 << 30
)

// NumCPU is the number of logical CPUs made available for coarsening.
var NumCPU = runtime.NumCPU()

// ElapsedTime logs the time since startTime at Info level, prefixed by the formatted message.
func ElapsedTime(startTime time.Time, format string, args ...interface{}) {
	Infof("%s: %s\n", fmt.Sprintf(format, args...), time.Since(startTime))
}

// MemSize returns a human-readable estimate of the memory held by v.
func MemSize(v interface{}) string {
	n := size.Of(v)
	if n < 0 {
		return "unknown"
	}
	return humanize.Bytes(uint64(n))
}

// ConvertToAbsolute returns path as absolute, resolving relative paths against dir.
func ConvertToAbsolute(path, dir string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	return filepath.Abs(filepath.Join(dir, path))
}
