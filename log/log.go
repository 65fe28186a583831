// Package log implements the leveled logging sink of the asynchronous array
// writer. It follows the Outputter design of github.com/grailbio/base/log,
// adapted from that package's Off/Error/Info/Debug scheme to the four
// verbosities of the writer's logging sink (Error, Warning, Status, Debug,
// in ascending order of verbosity) and made instantiable: each writer
// Instance owns one Sink rather than sharing a single package-level logger.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level is a logging verbosity. A Sink emits a record only when the
// record's level is less than or equal to the sink's configured threshold.
type Level int

const (
	// Error is the lowest verbosity: only error conditions are logged.
	Error Level = iota
	// Warning additionally logs recoverable anomalies.
	Warning
	// Status additionally logs coarse progress (file opened).
	Status
	// Debug additionally logs fine-grained tracing (records written
	// synchronously on staging overflow).
	Debug
)

func (l Level) String() string {
	switch l {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Status:
		return "status"
	case Debug:
		return "debug"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

type closingStrategy int

const (
	strategyKeepOpen closingStrategy = iota
	strategyCloseOnDestroy
)

// A Sink is a leveled log destination. The zero value is not ready for use;
// construct one with New. A Sink is safe for concurrent use.
type Sink struct {
	mu       sync.Mutex
	w        io.Writer
	file     *os.File
	strategy closingStrategy
	level    Level
}

// New returns a Sink that writes to os.Stderr at Warning level, matching
// the writer's documented default sink.
func New() *Sink {
	return &Sink{w: os.Stderr, level: Warning, strategy: strategyKeepOpen}
}

// SetLevel changes the threshold: records more verbose than level are
// dropped.
func (s *Sink) SetLevel(level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = level
}

// Level returns the sink's current threshold.
func (s *Sink) Level() Level {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// SetFile opens path for appending (creating it if necessary, syncing every
// write) and makes it the sink's destination. Any previously owned
// destination is closed first.
func (s *Sink) SetFile(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE|os.O_SYNC, 0644)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	s.w, s.file, s.strategy = f, f, strategyCloseOnDestroy
	return nil
}

// SetStream makes w the sink's destination. If keepOpen is false and w is an
// *os.File, the sink closes it at Close.
func (s *Sink) SetStream(w io.Writer, keepOpen bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	s.w = w
	s.strategy = strategyKeepOpen
	if !keepOpen {
		s.strategy = strategyCloseOnDestroy
	}
	if f, ok := w.(*os.File); ok {
		s.file = f
	} else {
		s.file = nil
	}
}

// SetFD wraps fd as the sink's destination. If keepOpen is false, the sink
// closes fd at Close.
func (s *Sink) SetFD(fd uintptr, keepOpen bool) {
	f := os.NewFile(fd, "ah5go-log")
	s.SetStream(f, keepOpen)
}

// Close closes the sink's destination if the sink owns it. It is safe to
// call Close more than once.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Sink) closeLocked() error {
	if s.strategy != strategyCloseOnDestroy || s.file == nil {
		s.file = nil
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *Sink) emit(level Level, format string, args ...interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if level > s.level {
		return
	}
	ts := time.Now().Format("2006-01-02T15:04:05.000000")
	fmt.Fprintf(s.w, "*** %s %s: %s\n", level, ts, fmt.Sprintf(format, args...))
	if f, ok := s.w.(interface{ Sync() error }); ok {
		_ = f.Sync()
	}
}

// Errorf logs a message at Error level.
func (s *Sink) Errorf(format string, args ...interface{}) { s.emit(Error, format, args...) }

// Warningf logs a message at Warning level.
func (s *Sink) Warningf(format string, args ...interface{}) { s.emit(Warning, format, args...) }

// Statusf logs a message at Status level.
func (s *Sink) Statusf(format string, args ...interface{}) { s.emit(Status, format, args...) }

// Debugf logs a message at Debug level.
func (s *Sink) Debugf(format string, args ...interface{}) { s.emit(Debug, format, args...) }
