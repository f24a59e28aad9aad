// Package logging configures the global slog logger for clipdeck.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pwntr/tinter"
)

// Format selects the log output format.
type Format string

const (
	FormatAuto Format = "auto"
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat maps a flag value to a Format. Anything unrecognised is auto.
func ParseFormat(s string) Format {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, "tint", "human":
		return FormatText
	case FormatJSON:
		return FormatJSON
	}
	return FormatAuto
}

// ParseLevel converts a string to a slog.Level. An empty or unknown string
// yields def.
func ParseLevel(s string, def slog.Level) slog.Level {
	var l slog.Level
	if s == "" || l.UnmarshalText([]byte(s)) != nil {
		return def
	}
	return l
}

// DefaultLevel is debug for a foreground session and info for the daemon.
func DefaultLevel(interactive bool) slog.Level {
	if interactive {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

// New returns a logger writing to w. Auto picks tinter on a terminal and
// JSON elsewhere; text forced onto a non-terminal is written as plain
// key=value lines.
func New(w io.Writer, format Format, level slog.Level) *slog.Logger {
	tty := IsTTY(w)
	opts := &slog.HandlerOptions{Level: level}
	switch {
	case format == FormatJSON || (format == FormatAuto && !tty):
		return slog.New(slog.NewJSONHandler(w, opts))
	case !tty:
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(tinter.NewHandler(w, &tinter.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
	}))
}

// Setup installs a stderr logger as the slog default. Call once after
// flag/viper parsing.
func Setup(format Format, level slog.Level) {
	slog.SetDefault(New(os.Stderr, format, level))
}
