// Package errlog appends warnings and errors to the run's CSV error sink.
// Warnings never fail a run; they exist so an operator can audit what a
// build or simulation skipped.
package errlog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/banshee-data/mobility.report/internal/timeutil"
)

// DefaultFileName is used when the config does not name an errors file.
const DefaultFileName = "errors.csv"

// timestampFormat matches the sink's historical row format.
const timestampFormat = "01/02/2006, 15:04:05"

// Severity of a sink event.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Sink is an append-only CSV error log. Safe for concurrent use within a
// process; rows are flushed per append so a crash loses at most the row
// being written.
type Sink struct {
	mu    sync.Mutex
	path  string
	clock timeutil.Clock
}

// New returns a sink writing to file under dir, creating dir if needed.
func New(dir, file string) (*Sink, error) {
	if file == "" {
		file = DefaultFileName
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("errlog: create folder: %w", err)
	}
	return &Sink{path: filepath.Join(dir, file), clock: timeutil.RealClock{}}, nil
}

// NewWithClock is New with an injected clock, for tests.
func NewWithClock(dir, file string, clock timeutil.Clock) (*Sink, error) {
	s, err := New(dir, file)
	if err != nil {
		return nil, err
	}
	s.clock = clock
	return s, nil
}

// Path returns the sink's file path.
func (s *Sink) Path() string { return s.path }

// Warning appends a warning row.
func (s *Sink) Warning(source, msg string) error {
	return s.write(source, SeverityWarning, msg, s.clock.Now())
}

// Error appends an error row.
func (s *Sink) Error(source, msg string) error {
	return s.write(source, SeverityError, msg, s.clock.Now())
}

// Errorf appends a formatted error row.
func (s *Sink) Errorf(source, format string, args ...any) error {
	return s.Error(source, fmt.Sprintf(format, args...))
}

// Warningf appends a formatted warning row.
func (s *Sink) Warningf(source, format string, args ...any) error {
	return s.Warning(source, fmt.Sprintf(format, args...))
}

func (s *Sink) write(source string, sev Severity, msg string, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("errlog: open sink: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{ts.Format(timestampFormat), source, string(sev), msg}); err != nil {
		return fmt.Errorf("errlog: append row: %w", err)
	}
	w.Flush()
	return w.Error()
}
