package logging

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var Logger zerolog.Logger

func init() {
	// logs go to stderr; stdout carries the report
	Logger = New(os.Stderr, !IsTerminal(os.Stderr.Fd())).Level(zerolog.InfoLevel)
}

// IsTerminal reports whether fd is an interactive terminal, in which case
// colored output is wanted.
func IsTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// New returns a console logger writing to w. Writes are serialized so lines
// from concurrent workers never interleave.
func New(w io.Writer, noColor bool) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{
		Out:     zerolog.SyncWriter(w),
		NoColor: noColor,
	}).With().Timestamp().Logger()
}

func With() zerolog.Context {
	return Logger.With()
}

func Trace() *zerolog.Event {
	return Logger.Trace()
}

func Debug() *zerolog.Event {
	return Logger.Debug()
}

func Info() *zerolog.Event {
	return Logger.Info()
}

func Warn() *zerolog.Event {
	return Logger.Warn()
}

func Error() *zerolog.Event {
	return Logger.Error()
}

func Err(err error) *zerolog.Event {
	return Logger.Err(err)
}

func Fatal() *zerolog.Event {
	return Logger.Fatal()
}
