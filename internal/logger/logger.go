// Package logger provides the leveled printf-style logging used across the
// server. It intentionally stays small: level filtering and a timestamped
// prefix over the standard library logger.
package logger

import (
	"fmt"
	stdlog "log"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	currentLevel atomic.Int32
	out          = stdlog.New(os.Stderr, "", 0)
)

func init() {
	currentLevel.Store(int32(LevelInfo))
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// SetLevel sets the minimum level that will be emitted. Unknown names are
// ignored, leaving the current level in place.
func SetLevel(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel.Store(int32(LevelDebug))
	case "INFO":
		currentLevel.Store(int32(LevelInfo))
	case "WARN":
		currentLevel.Store(int32(LevelWarn))
	case "ERROR":
		currentLevel.Store(int32(LevelError))
	}
}

func emit(level Level, format string, v ...any) {
	if int32(level) < currentLevel.Load() {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	out.Println(fmt.Sprintf("[%s] [%s] %s", timestamp, level, fmt.Sprintf(format, v...)))
}

func Debug(format string, v ...any) { emit(LevelDebug, format, v...) }
func Info(format string, v ...any)  { emit(LevelInfo, format, v...) }
func Warn(format string, v ...any)  { emit(LevelWarn, format, v...) }
func Error(format string, v ...any) { emit(LevelError, format, v...) }
