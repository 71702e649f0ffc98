// Package corelog wraps logrus with per-subsystem scoped loggers and a
// daily-rotating file sink, matching the queue-drain shape of the
// teacher's LogManager: log calls never block the caller, a single
// background goroutine owns the file handle and the day boundary check.
package corelog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Manager owns the shared logrus instance, the daily log file sink, and
// the bounded queue that keeps logging off the tick thread.
type Manager struct {
	base   *logrus.Logger
	writer *QueuedWriter

	mu      sync.Mutex
	loggers map[string]*Logger
}

// New creates a Manager that writes to logDir/<product>-YYYY-MM-DD.log in
// addition to stderr. product is used verbatim in the rotated file name.
func New(logDir, product string) (*Manager, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("corelog: create log dir: %w", err)
	}

	base := logrus.New()
	base.SetFormatter(&entryFormatter{})
	base.SetLevel(logrus.DebugLevel)

	qw := newQueuedWriter(logDir, product, os.Stderr)
	base.SetOutput(qw)

	return &Manager{
		base:    base,
		writer:  qw,
		loggers: make(map[string]*Logger),
	}, nil
}

// Logger returns the scoped logger for name, creating it on first use.
func (m *Manager) Logger(name string) *Logger {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.loggers[name]; ok {
		return l
	}
	l := &Logger{entry: m.base.WithField("component", name), name: name}
	m.loggers[name] = l
	return l
}

// Shutdown drains the queued writer and closes the current log file.
func (m *Manager) Shutdown() {
	m.writer.Close()
}

// Logger is a component-scoped handle over the shared logrus instance,
// mirroring RubidiumLogger's name-qualified logging surface.
type Logger struct {
	entry *logrus.Entry
	name  string
}

func (l *Logger) Name() string { return l.name }

func (l *Logger) Debug(msg string, fields ...logrus.Fields) { l.log(logrus.DebugLevel, msg, fields) }
func (l *Logger) Info(msg string, fields ...logrus.Fields)  { l.log(logrus.InfoLevel, msg, fields) }
func (l *Logger) Warn(msg string, fields ...logrus.Fields)  { l.log(logrus.WarnLevel, msg, fields) }

// Error logs msg at error level. If err is non-nil its string form (and,
// for wrapped errors, a stack-ish chain) is attached so the rendered log
// line carries the "optional stack trace block" the filesystem layout
// contract describes.
func (l *Logger) Error(msg string, err error, fields ...logrus.Fields) {
	e := l.entry
	if err != nil {
		e = e.WithField("error", err.Error())
	}
	logWithFields(e, logrus.ErrorLevel, msg, fields)
}

func (l *Logger) log(level logrus.Level, msg string, fields []logrus.Fields) {
	logWithFields(l.entry, level, msg, fields)
}

func logWithFields(e *logrus.Entry, level logrus.Level, msg string, fields []logrus.Fields) {
	if len(fields) > 0 {
		e = e.WithFields(fields[0])
	}
	e.Log(level, msg)
}

// Named returns a sub-logger whose component name is "parent:child",
// matching the colon-qualified hierarchy the original LogManager used to
// resolve effective log levels by walking up to a parent prefix.
func (l *Logger) Named(child string) *Logger {
	return &Logger{entry: l.entry.WithField("component", l.name+":"+child), name: l.name + ":" + child}
}

// entryFormatter renders "<TIMESTAMP> [<LEVEL>] [<logger>] <message>",
// the exact line shape the filesystem layout contract specifies.
type entryFormatter struct{}

func (f *entryFormatter) Format(e *logrus.Entry) ([]byte, error) {
	component, _ := e.Data["component"].(string)
	if component == "" {
		component = "core"
	}

	line := fmt.Sprintf("%s [%s] [%s] %s",
		e.Time.Format("2006-01-02 15:04:05.000"),
		levelTag(e.Level),
		component,
		e.Message,
	)

	if errMsg, ok := e.Data["error"]; ok {
		line += fmt.Sprintf("\n    caused by: %v", errMsg)
	}
	for k, v := range e.Data {
		if k == "component" || k == "error" {
			continue
		}
		line += fmt.Sprintf(" %s=%v", k, v)
	}

	return append([]byte(line), '\n'), nil
}

func levelTag(l logrus.Level) string {
	switch l {
	case logrus.DebugLevel, logrus.TraceLevel:
		return "DEBUG"
	case logrus.InfoLevel:
		return "INFO"
	case logrus.WarnLevel:
		return "WARN"
	case logrus.ErrorLevel:
		return "ERROR"
	default:
		return "FATAL"
	}
}

// filePath builds the daily log file path QueuedWriter opens.
func filePath(logDir, product string, t time.Time) string {
	return filepath.Join(logDir, fmt.Sprintf("%s-%s.log", product, t.Format("2006-01-02")))
}

var _ io.Writer = (*QueuedWriter)(nil)
