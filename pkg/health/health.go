// Package health provides the command-surface's stand-in for the
// pluggable manager's health-check sink (§1 Non-goals names the real
// sink — along with the config store and mon-command RPC — as an
// external collaborator). LogSink satisfies both pkg/upgrade.HealthSink
// and pkg/serve.HealthSink by routing Set/Clear transitions through
// pkg/log instead of the manager's health-check API, the way the teacher
// routes events it can't act on directly through its logger.
package health

import "github.com/zph/fleetd/pkg/log"

// LogSink logs every health check transition and remembers which checks
// are currently raised, so cmd/fleetctl's `status` command has something
// to report against.
type LogSink struct {
	log    log.Logger
	active map[string]string
}

// NewLogSink constructs a ready-to-use LogSink.
func NewLogSink() *LogSink {
	return &LogSink{log: log.With("health", nil), active: make(map[string]string)}
}

// Set raises or updates named check with detail.
func (s *LogSink) Set(name, detail string) {
	s.active[name] = detail
	s.log.WithField("check", name).Warn(detail)
}

// Clear drops name if it was raised.
func (s *LogSink) Clear(name string) {
	if _, ok := s.active[name]; !ok {
		return
	}
	delete(s.active, name)
	s.log.WithField("check", name).Info("cleared")
}

// Active returns a snapshot of every currently raised check.
func (s *LogSink) Active() map[string]string {
	out := make(map[string]string, len(s.active))
	for k, v := range s.active {
		out[k] = v
	}
	return out
}
