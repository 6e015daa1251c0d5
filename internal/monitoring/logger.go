// Package monitoring holds the process-wide diagnostic logger used by the
// pipeline, flow and video packages.
package monitoring

import (
	"log"
	"time"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf and
// may be replaced with SetLogger, for example to mute per-frame output in tests.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Stage starts timing a named unit of work and returns a function that logs
// its elapsed time when called. Intended for use with defer:
//
//	defer monitoring.Stage("decode %s", path)()
func Stage(format string, v ...interface{}) func() {
	start := time.Now()
	return func() {
		args := append(append([]interface{}{}, v...), time.Since(start).Round(time.Millisecond))
		Logf(format+" took %s", args...)
	}
}
