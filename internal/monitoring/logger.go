// Package monitoring holds the process-wide diagnostic logger shared by the
// SLAM runtime modules.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf;
// tests and embedding applications can redirect or mute it with SetLogger.
// Modules prefix their messages with a "[Component]" tag.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. A nil argument installs a no-op
// logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
