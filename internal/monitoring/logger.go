// Package monitoring owns process-wide log routing. Packages that log on
// the ops/diag/trace streams expose SetLogWriters; Streams decides which
// of those streams are enabled and fans them out.
package monitoring

import (
	"fmt"
	"io"
	"log"
)

// Logf is the package-level logger for helpers that have no stream of
// their own. It defaults to log.Printf; SetLogger replaces it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces Logf. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Level selects how many streams are enabled. Each level includes the
// ones before it.
type Level int

const (
	LevelQuiet Level = iota // nothing
	LevelOps                // lifecycle and failures
	LevelDiag               // per-report and per-lot diagnostics
	LevelTrace              // per-frame detail
)

// ParseLevel accepts quiet, ops, diag or trace.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "quiet", "off":
		return LevelQuiet, nil
	case "", "ops":
		return LevelOps, nil
	case "diag":
		return LevelDiag, nil
	case "trace":
		return LevelTrace, nil
	default:
		return LevelQuiet, fmt.Errorf("unknown log level %q (want quiet, ops, diag or trace)", s)
	}
}

func (l Level) String() string {
	switch l {
	case LevelQuiet:
		return "quiet"
	case LevelOps:
		return "ops"
	case LevelDiag:
		return "diag"
	case LevelTrace:
		return "trace"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Streams are the three writers handed to SetLogWriters. A nil writer
// disables that stream.
type Streams struct {
	Ops, Diag, Trace io.Writer
}

// NewStreams routes every stream enabled by level to w.
func NewStreams(level Level, w io.Writer) Streams {
	var s Streams
	if w == nil {
		return s
	}
	if level >= LevelOps {
		s.Ops = w
	}
	if level >= LevelDiag {
		s.Diag = w
	}
	if level >= LevelTrace {
		s.Trace = w
	}
	return s
}

// Apply passes the streams to each package's SetLogWriters.
func (s Streams) Apply(setters ...func(ops, diag, trace io.Writer)) {
	for _, set := range setters {
		set(s.Ops, s.Diag, s.Trace)
	}
}
