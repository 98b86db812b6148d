package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrick/logrotate/rotator"
	"github.com/pkg/errors"
)

const (
	defaultThresholdKB = 10 * 1000 // rotate log files at 10 MB
	defaultMaxRolls    = 8         // keep the 8 last log files
)

// Backend is a logging backend. Subsystem loggers created from the backend
// send their entries to the backend's write goroutine, which fans them out
// to every registered writer whose level admits them. This gives atomic
// writes from all subsystems.
type Backend struct {
	isRunning uint32
	writers   []levelWriter
	writeChan chan backendEntry
	closeWait sync.Mutex // held by the write goroutine until it drains
}

type backendEntry struct {
	level Level
	log   []byte
}

type levelWriter struct {
	io.WriteCloser
	level Level
}

// NewBackend creates a new logging backend with no writers attached.
func NewBackend() *Backend {
	return &Backend{writeChan: make(chan backendEntry)}
}

// AddLogWriter attaches a writer that receives every entry at or above the
// given level. Must be called before Run.
func (b *Backend) AddLogWriter(writer io.WriteCloser, level Level) error {
	if b.IsRunning() {
		return errors.New("cannot add writers while the backend is running")
	}
	b.writers = append(b.writers, levelWriter{WriteCloser: writer, level: level})
	return nil
}

// AddLogFile attaches a rotating log file that receives every entry at or
// above the given level, with default rotation settings. The file and its
// directory are created if they don't exist. Must be called before Run.
func (b *Backend) AddLogFile(logFile string, level Level) error {
	if b.IsRunning() {
		return errors.New("cannot add log files while the backend is running")
	}
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		err := os.MkdirAll(logDir, 0700)
		if err != nil {
			return errors.Wrapf(err, "failed to create log directory %s", logDir)
		}
	}
	r, err := rotator.New(logFile, defaultThresholdKB, false, defaultMaxRolls)
	if err != nil {
		return errors.Wrapf(err, "failed to create file rotator for %s", logFile)
	}
	b.writers = append(b.writers, levelWriter{WriteCloser: r, level: level})
	return nil
}

// Run launches the backend's write goroutine. Should only be called once.
func (b *Backend) Run() error {
	if !atomic.CompareAndSwapUint32(&b.isRunning, 0, 1) {
		return errors.New("the logger backend is already running")
	}
	go func() {
		defer func() {
			if err := recover(); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "Fatal error in logger backend goroutine: %+v\n", err)
				_, _ = fmt.Fprintf(os.Stderr, "Goroutine stacktrace: %s\n", debug.Stack())
			}
		}()
		b.runBlocking()
	}()
	return nil
}

func (b *Backend) runBlocking() {
	defer atomic.StoreUint32(&b.isRunning, 0)
	b.closeWait.Lock()
	defer b.closeWait.Unlock()

	for entry := range b.writeChan {
		for _, writer := range b.writers {
			if entry.level >= writer.level {
				_, _ = writer.Write(entry.log)
			}
		}
	}
}

// IsRunning returns whether Run has been called and the backend hasn't been
// closed yet.
func (b *Backend) IsRunning() bool {
	return atomic.LoadUint32(&b.isRunning) != 0
}

// Close waits for all pending entries to be written and closes every
// attached writer.
func (b *Backend) Close() {
	close(b.writeChan)
	// The write goroutine releases closeWait once it has drained writeChan.
	b.closeWait.Lock()
	defer b.closeWait.Unlock()
	for _, writer := range b.writers {
		_ = writer.Close()
	}
}

func (b *Backend) write(level Level, entry []byte) {
	if !b.IsRunning() {
		return
	}
	defer func() {
		// Sending on writeChan races with Close. Dropping the entry is the
		// right outcome when the backend is shutting down.
		_ = recover()
	}()
	b.writeChan <- backendEntry{level: level, log: entry}
}

// formatHeader writes the log header into buf: timestamp, level tag and
// subsystem tag, e.g. "2026-08-25 14:03:02.831 [INF] PRWR: ".
func formatHeader(buf *[]byte, t time.Time, levelTag string, tag string) {
	*buf = t.AppendFormat(*buf, "2006-01-02 15:04:05.000")
	*buf = append(*buf, " ["...)
	*buf = append(*buf, levelTag...)
	*buf = append(*buf, "] "...)
	*buf = append(*buf, tag...)
	*buf = append(*buf, ": "...)
}
