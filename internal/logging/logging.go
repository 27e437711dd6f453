// Package logging wraps the standard log package with the bracketed-tag,
// verbosity-gated style used throughout the teacher's servers
// (log.Println("[REP LOOP][ERRO] ...")), but driven by a numeric level
// instead of an ad hoc string tag.
package logging

import (
	"log"
	"os"
	"strconv"
)

type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarning:
		return "WARNING"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	case LevelTrace:
		return "TRACE"
	default:
		return "?"
	}
}

// Logger gates log.Logger output by verbosity, mirroring
// BROKER_CONSOLE_VERBOSITY/BROKER_FILE_VERBOSITY from spec.md §6.
type Logger struct {
	tag     string
	console *log.Logger
	level   Level
}

// New builds a Logger tagged with component, reading its console
// verbosity from the BROKER_CONSOLE_VERBOSITY environment variable
// (default LevelInfo).
func New(component string) *Logger {
	return &Logger{
		tag:     component,
		console: log.New(os.Stderr, "", log.LstdFlags),
		level:   envLevel("BROKER_CONSOLE_VERBOSITY", LevelInfo),
	}
}

func envLevel(name string, def Level) Level {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	switch v {
	case "error":
		return LevelError
	case "warning":
		return LevelWarning
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	case "trace":
		return LevelTrace
	}
	if n, err := strconv.Atoi(v); err == nil {
		return Level(n)
	}
	return def
}

func (l *Logger) log(level Level, format string, args ...any) {
	if level > l.level {
		return
	}
	l.console.Printf("[%s][%s] "+format, append([]any{l.tag, level.String()}, args...)...)
}

func (l *Logger) Errorf(format string, args ...any)   { l.log(LevelError, format, args...) }
func (l *Logger) Warningf(format string, args ...any) { l.log(LevelWarning, format, args...) }
func (l *Logger) Infof(format string, args ...any)    { l.log(LevelInfo, format, args...) }
func (l *Logger) Debugf(format string, args ...any)   { l.log(LevelDebug, format, args...) }
func (l *Logger) Tracef(format string, args ...any)   { l.log(LevelTrace, format, args...) }
