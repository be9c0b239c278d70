// Package logging provides the Logger interface used across the scan
// core. The default implementation writes bracketed level prefixes
// ([DEBUG], [INFO], [WARN], [ERROR]), colorizing them only when the output
// stream is a real terminal.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/vscan/vscan/internal/safeio"
)

// Logger is the minimal structured-enough logging surface the scan core
// depends on. Components never hold *log.Logger directly so tests can
// swap in Nop or a recording fake.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// StdLogger writes level-prefixed lines to an io.Writer, via the standard
// library's log.Logger for timestamp formatting.
type StdLogger struct {
	out     *log.Logger
	color   bool
	debug   bool
}

// New builds a StdLogger writing to w. debug gates Debugf output. Color is
// enabled only when w is os.Stdout/os.Stderr and that fd is a terminal.
func New(w io.Writer, debug bool) *StdLogger {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &StdLogger{
		out:   log.New(w, "", log.LstdFlags),
		color: color,
		debug: debug,
	}
}

func (l *StdLogger) Debugf(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.out.Print(l.prefix("DEBUG", "\x1b[90m") + safeio.Sanitize(fmt.Sprintf(format, args...), safeio.ContextLog))
}

func (l *StdLogger) Infof(format string, args ...interface{}) {
	l.out.Print(l.prefix("INFO", "\x1b[36m") + safeio.Sanitize(fmt.Sprintf(format, args...), safeio.ContextLog))
}

func (l *StdLogger) Warnf(format string, args ...interface{}) {
	l.out.Print(l.prefix("WARN", "\x1b[33m") + safeio.Sanitize(fmt.Sprintf(format, args...), safeio.ContextLog))
}

func (l *StdLogger) Errorf(format string, args ...interface{}) {
	l.out.Print(l.prefix("ERROR", "\x1b[31m") + safeio.Sanitize(fmt.Sprintf(format, args...), safeio.ContextLog))
}

func (l *StdLogger) prefix(level, ansiColor string) string {
	if !l.color {
		return "[" + level + "] "
	}
	return ansiColor + "[" + level + "]\x1b[0m "
}

// Nop discards every call; used by components and tests that don't care
// about log output.
type Nop struct{}

func (Nop) Debugf(string, ...interface{}) {}
func (Nop) Infof(string, ...interface{})  {}
func (Nop) Warnf(string, ...interface{})  {}
func (Nop) Errorf(string, ...interface{}) {}
