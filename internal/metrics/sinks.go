package metrics

import (
	"github.com/sirupsen/logrus"

	"github.com/rubidium-run/rubidium/internal/corelog"
)

// LogSink writes a one-line debug summary of every metrics snapshot
// through a scoped logger. It never fails. Errors from other sinks are
// logged by Registry.ExportToAll, not by LogSink.
type LogSink struct {
	logger *corelog.Logger
}

func NewLogSink(logger *corelog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Export(snap Snapshot) error {
	s.logger.Debug("metrics snapshot", logrus.Fields{
		"counters":   len(snap.Counters),
		"gauges":     len(snap.Gauges),
		"histograms": len(snap.Histograms),
		"timers":     len(snap.Timers),
	})
	return nil
}
