// Package logger provides leveled, subsystem-tagged logging for the
// peerwire library and its embedding applications.
package logger

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// BackendLog is the logging backend used by all library subsystems.
var BackendLog = NewBackend()

var (
	subsystemsMutex sync.Mutex
	subsystems      = make(map[string]*Logger)
)

// RegisterSubSystem returns a logger for the given subsystem tag, creating
// it if needed. Each package of the library registers its own subsystem in
// its log.go file.
func RegisterSubSystem(tag string) *Logger {
	subsystemsMutex.Lock()
	defer subsystemsMutex.Unlock()
	log, ok := subsystems[tag]
	if !ok {
		log = &Logger{level: uint32(LevelInfo), tag: tag, backend: BackendLog}
		subsystems[tag] = log
	}
	return log
}

// SetLogLevels sets the logging level of all registered subsystems.
func SetLogLevels(level Level) {
	subsystemsMutex.Lock()
	defer subsystemsMutex.Unlock()
	for _, log := range subsystems {
		log.SetLevel(level)
	}
}

// InitLog attaches stdout plus an optional rotating log file to the backend
// and starts it. An empty logFile attaches stdout only.
func InitLog(logFile string, level Level) error {
	err := BackendLog.AddLogWriter(nopWriteCloser{os.Stdout}, level)
	if err != nil {
		return errors.Wrap(err, "failed to add stdout to the logger")
	}
	if logFile != "" {
		err := BackendLog.AddLogFile(logFile, LevelTrace)
		if err != nil {
			return errors.Wrapf(err, "failed to add log file %s to the logger", logFile)
		}
	}
	return BackendLog.Run()
}

type nopWriteCloser struct {
	*os.File
}

func (nopWriteCloser) Close() error { return nil }

// Logger is a subsystem logger. All messages are tagged with the subsystem
// name and filtered by the logger's level before reaching the backend.
type Logger struct {
	level   uint32 // atomic, holds a Level
	tag     string
	backend *Backend
}

// Level returns the current logging level of the subsystem.
func (l *Logger) Level() Level {
	return Level(atomic.LoadUint32(&l.level))
}

// SetLevel changes the logging level of the subsystem.
func (l *Logger) SetLevel(level Level) {
	atomic.StoreUint32(&l.level, uint32(level))
}

// Backend returns the backend this logger writes to.
func (l *Logger) Backend() *Backend {
	return l.backend
}

func (l *Logger) print(level Level, args ...interface{}) {
	if level < l.Level() {
		return
	}
	l.write(level, fmt.Sprint(args...))
}

func (l *Logger) printf(level Level, format string, args ...interface{}) {
	if level < l.Level() {
		return
	}
	l.write(level, fmt.Sprintf(format, args...))
}

func (l *Logger) write(level Level, message string) {
	buf := make([]byte, 0, len(message)+64)
	formatHeader(&buf, time.Now(), level.String(), l.tag)
	buf = append(buf, message...)
	buf = append(buf, '\n')
	l.backend.write(level, buf)
}

// Tracef formats a message according to a format specifier and writes it
// with level trace.
func (l *Logger) Tracef(format string, args ...interface{}) {
	l.printf(LevelTrace, format, args...)
}

// Debugf formats a message according to a format specifier and writes it
// with level debug.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.printf(LevelDebug, format, args...)
}

// Infof formats a message according to a format specifier and writes it
// with level info.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.printf(LevelInfo, format, args...)
}

// Warnf formats a message according to a format specifier and writes it
// with level warn.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.printf(LevelWarn, format, args...)
}

// Errorf formats a message according to a format specifier and writes it
// with level error.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.printf(LevelError, format, args...)
}

// Criticalf formats a message according to a format specifier and writes it
// with level critical.
func (l *Logger) Criticalf(format string, args ...interface{}) {
	l.printf(LevelCritical, format, args...)
}

// Trace writes a message with level trace.
func (l *Logger) Trace(args ...interface{}) {
	l.print(LevelTrace, args...)
}

// Debug writes a message with level debug.
func (l *Logger) Debug(args ...interface{}) {
	l.print(LevelDebug, args...)
}

// Info writes a message with level info.
func (l *Logger) Info(args ...interface{}) {
	l.print(LevelInfo, args...)
}

// Warn writes a message with level warn.
func (l *Logger) Warn(args ...interface{}) {
	l.print(LevelWarn, args...)
}

// Error writes a message with level error.
func (l *Logger) Error(args ...interface{}) {
	l.print(LevelError, args...)
}

// Critical writes a message with level critical.
func (l *Logger) Critical(args ...interface{}) {
	l.print(LevelCritical, args...)
}
