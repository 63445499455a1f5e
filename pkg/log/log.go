// Package log is the structured logging façade used by every package in
// this module. It generalizes the teacher's pkg/logger (level-gated
// fmt.Printf wrapper) into a logrus-backed façade carrying structured
// fields, the way cmd/mup itself already pulls in logrus directly for CLI
// output.
package log

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var base = newBase()

func newBase() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl := strings.ToLower(os.Getenv("FLEETD_LOG_LEVEL")); lvl != "" {
		if parsed, err := logrus.ParseLevel(lvl); err == nil {
			l.SetLevel(parsed)
		}
	}
	return l
}

// Fields is an alias for structured key/value logging context.
type Fields = logrus.Fields

// Logger is the subset of *logrus.Entry this module depends on.
type Logger = *logrus.Entry

// With returns a Logger carrying the given fields, scoped to a component.
func With(component string, fields Fields) Logger {
	if fields == nil {
		fields = Fields{}
	}
	fields["component"] = component
	return base.WithFields(fields)
}

// SetLevel overrides the base logger's level (used by cmd/fleetctl's
// --verbose flag).
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}
