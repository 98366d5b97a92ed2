/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

// Package logging provides the leveled logger used throughout skyforge.
// Pipeline components receive a *Logger; commands without a component
// handle use the package-level functions, which write through a shared
// default logger configured once at startup.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
)

// LogLevel represents the severity level of a log message
type LogLevel int

// OutputType represents the output format for logs
type OutputType int

// Output types for different log formats
const (
	PlainOutput OutputType = iota
	ColorOutput
)

// Log levels ordered from least to most severe for numeric comparison.
const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Logger wraps leveled logging with quiet/verbose console handling.
type Logger struct {
	mu         sync.Mutex
	LogLevel   slog.Level
	OutputType OutputType
	Quiet      bool
	Verbose    bool
	Writer     io.Writer
}

// NewLogger creates a logger at the given level writing to stderr.
func NewLogger(level slog.Level) *Logger {
	return &Logger{
		LogLevel: level,
		Writer:   os.Stderr,
	}
}

// NewLoggerWithOptions creates a logger from CLI-level settings.
func NewLoggerWithOptions(logLevelStr, outputFormat string, quiet, verbose bool) *Logger {
	logLevel := DetermineLogLevel(logLevelStr)

	outputType := PlainOutput
	if outputFormat == "color" {
		outputType = ColorOutput
	}

	if verbose && logLevel > slog.LevelDebug {
		logLevel = slog.LevelDebug
	}

	return &Logger{
		LogLevel:   logLevel,
		OutputType: outputType,
		Quiet:      quiet,
		Verbose:    verbose,
		Writer:     os.Stderr,
	}
}

// DetermineLogLevel converts a string to slog.Level
func DetermineLogLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// formatMessage applies a colored level prefix for color output and a
// plain "LEVEL - message" form otherwise.
func (l *Logger) formatMessage(level LogLevel, message string, args ...interface{}) string {
	formattedMsg := fmt.Sprintf(message, args...)

	if l.OutputType != ColorOutput {
		return fmt.Sprintf("%s - %s", level, formattedMsg)
	}

	switch level {
	case DebugLevel:
		return color.HiBlackString("[DEBUG] %s", formattedMsg)
	case InfoLevel:
		return color.HiGreenString("[INFO] %s", formattedMsg)
	case WarnLevel:
		return color.HiYellowString("[WARN] %s", formattedMsg)
	case ErrorLevel:
		return color.HiRedString("[ERROR] %s", formattedMsg)
	default:
		return formattedMsg
	}
}

// shouldShowLocked determines whether a message is written at all.
// Must be called while holding l.mu.
func (l *Logger) shouldShowLocked(level LogLevel) bool {
	if l.Quiet {
		return level == ErrorLevel
	}

	if l.Verbose {
		return true
	}

	if l.LogLevel <= slog.LevelDebug {
		return true
	}

	return level >= InfoLevel
}

func (l *Logger) log(level LogLevel, message string, args ...interface{}) {
	formattedMsg := l.formatMessage(level, message, args...)
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05Z")

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.shouldShowLocked(level) || l.Writer == nil {
		return
	}

	if _, err := fmt.Fprintf(l.Writer, "%s %s\n", timestamp, formattedMsg); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", timestamp, formattedMsg)
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.log(DebugLevel, format, args...)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.log(InfoLevel, format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.log(WarnLevel, format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.log(ErrorLevel, format, args...)
}

// ErrorErr logs an error value directly without formatting.
func (l *Logger) ErrorErr(err error) {
	if err != nil {
		l.log(ErrorLevel, "%s", err.Error())
	}
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = NewLogger(slog.LevelInfo)
)

// Initialize replaces the package default logger with one built from the
// final CLI-level settings. Called once from the root command.
func Initialize(logLevelStr, outputFormat string, quiet, verbose bool) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultLogger = NewLoggerWithOptions(logLevelStr, outputFormat, quiet, verbose)
}

// Default returns the package default logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// Debug logs a debug message through the default logger.
func Debug(format string, args ...interface{}) {
	Default().Debug(format, args...)
}

// Info logs an informational message through the default logger.
func Info(format string, args ...interface{}) {
	Default().Info(format, args...)
}

// Warn logs a warning message through the default logger.
func Warn(format string, args ...interface{}) {
	Default().Warn(format, args...)
}

// Error logs an error message through the default logger.
func Error(format string, args ...interface{}) {
	Default().Error(format, args...)
}
