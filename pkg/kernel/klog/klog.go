// Package klog is the kernel-wide structured logging façade. It mirrors the
// Infof/Warningf/Debugf call shape used by the sentry boot path, backed by
// logrus rather than a bespoke emitter.
package klog

import (
	"os"

	"github.com/sirupsen/logrus"
)

var std = logrus.New()

func init() {
	std.SetOutput(os.Stderr)
	std.SetLevel(logrus.InfoLevel)
}

// SetLevel adjusts the global verbosity. Accepts "debug", "info", "warn".
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		std.Warnf("klog: unknown level %q, keeping %s", level, std.GetLevel())
		return
	}
	std.SetLevel(lvl)
}

// Debugf logs a debug-level message. Used for routine state transitions
// (schedule, block, unblock, donation splice).
func Debugf(format string, args ...interface{}) {
	std.Debugf(format, args...)
}

// Infof logs an info-level message.
func Infof(format string, args ...interface{}) {
	std.Infof(format, args...)
}

// Warningf logs a warning-level message.
func Warningf(format string, args ...interface{}) {
	std.Warnf(format, args...)
}

// Fatalf logs and terminates the process with exit status 1. The CLI uses it
// for boot failures such as a diskstore directory that cannot be created.
func Fatalf(format string, args ...interface{}) {
	std.Fatalf(format, args...)
}

// WithField returns an entry carrying one structured field, for call sites
// that want to attach a tid/lock-identity without building a format string.
func WithField(key string, value interface{}) *logrus.Entry {
	return std.WithField(key, value)
}
