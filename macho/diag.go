package macho

import (
	"fmt"
	"os"
)

// Severity classifies a diagnostic raised while building an object
// file. PANIC marks a back-end invariant violation and is always
// followed by a call to panic(); FATAL is always followed by the
// caller returning an error up the stack; NONFATAL and WARNING let
// processing continue in a degraded but still-terminating way.
type Severity int

const (
	Warning Severity = iota
	Nonfatal
	Fatal
	Panic
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "WARNING"
	case Nonfatal:
		return "NONFATAL"
	case Fatal:
		return "FATAL"
	case Panic:
		return "PANIC"
	default:
		return "UNKNOWN"
	}
}

// Diag receives diagnostics raised while building an object file.
type Diag interface {
	Report(sev Severity, format string, args ...any)
}

// StderrDiag writes "[SEVERITY] message" lines to os.Stderr, the
// same flat diagnostic shape a command-line assembler prints.
type StderrDiag struct {
	// Verbose additionally prints internal trace detail gated the way
	// the teacher gates its own per-instruction dumps behind
	// VerboseMode; WARNING/NONFATAL/FATAL/PANIC always print.
	Verbose bool
}

func (d *StderrDiag) Report(sev Severity, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[%s] %s\n", sev, fmt.Sprintf(format, args...))
}

// Trace prints internal detail only when Verbose is set.
func (d *StderrDiag) Trace(format string, args ...any) {
	if d.Verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// errFatal is returned by backend operations after a FATAL-severity
// diagnostic has been reported; callers should treat it as terminal,
// the way the teacher's main() treats a non-nil error from New().
type errFatal struct {
	msg string
}

func (e *errFatal) Error() string { return e.msg }

func (b *Backend) fatalf(format string, args ...any) error {
	b.diag.Report(Fatal, format, args...)
	return &errFatal{msg: fmt.Sprintf(format, args...)}
}

func (b *Backend) panicf(format string, args ...any) {
	b.diag.Report(Panic, format, args...)
	panic(fmt.Sprintf(format, args...))
}

func (b *Backend) nonfatalf(format string, args ...any) {
	b.diag.Report(Nonfatal, format, args...)
}

func (b *Backend) warnf(format string, args ...any) {
	b.diag.Report(Warning, format, args...)
}
