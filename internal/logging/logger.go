// Package logging provides the leveled logger shared by the server, the
// console and the lifecycle service.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int32(l))
	}
}

func ParseLevel(value string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", value)
	}
}

const flags = log.Ldate | log.Ltime | log.Lmicroseconds

type Logger struct {
	level atomic.Int32
	info  *log.Logger
	err   *log.Logger
	debug *log.Logger
}

// New writes info and debug lines to out and errors to errOut.
func New(out, errOut io.Writer, level Level) *Logger {
	l := &Logger{
		info:  log.New(out, color.GreenString("[INFO]")+" ", flags),
		err:   log.New(errOut, color.RedString("[ERROR]")+" ", flags),
		debug: log.New(out, color.CyanString("[DEBUG]")+" ", flags),
	}
	l.SetLevel(level)
	return l
}

// Default logs to stdout and stderr.
func Default(level Level) *Logger {
	return New(os.Stdout, os.Stderr, level)
}

// Discard drops everything.
func Discard() *Logger {
	return New(io.Discard, io.Discard, LevelError)
}

func (l *Logger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

func (l *Logger) Level() Level {
	return Level(l.level.Load())
}

func (l *Logger) enabled(level Level) bool {
	return level >= l.Level()
}

func (l *Logger) Debugf(format string, v ...any) {
	if l.enabled(LevelDebug) {
		l.debug.Printf(format, v...)
	}
}

func (l *Logger) Infof(format string, v ...any) {
	if l.enabled(LevelInfo) {
		l.info.Printf(format, v...)
	}
}

func (l *Logger) Errorf(format string, v ...any) {
	l.err.Printf(format, v...)
}

// Error logs err under a short description of what failed.
func (l *Logger) Error(err error, context string) {
	l.err.Printf("%s: %v", context, err)
}

// Println logs at error level. It lets the logger receive recovered panics
// from gorilla/handlers.
func (l *Logger) Println(v ...any) {
	l.err.Println(v...)
}

// Request logs one served HTTP request.
func (l *Logger) Request(method, path, remoteAddr string, status int, duration time.Duration) {
	l.Infof("%s %s %s %d %v", method, path, remoteAddr, status, duration)
}
