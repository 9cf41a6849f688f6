package logging

import (
	"bytes"
	"fmt"
	"io"
	"log"

	"github.com/fatih/color"
)

// writer is an io.Writer that splits its input stream into lines and writes
// those lines to an underlying logger.
type writer struct {
	// callback is the logging callback.
	callback func(string)
	// buffer is any incomplete line fragment left over from a previous write.
	buffer []byte
}

// trimCarriageReturn trims any single trailing carriage return from the end
// of a byte slice.
func trimCarriageReturn(buffer []byte) []byte {
	if len(buffer) > 0 && buffer[len(buffer)-1] == '\r' {
		return buffer[:len(buffer)-1]
	}
	return buffer
}

// Write implements io.Writer.Write.
func (w *writer) Write(buffer []byte) (int, error) {
	w.buffer = append(w.buffer, buffer...)

	var processed int
	remaining := w.buffer
	for {
		index := bytes.IndexByte(remaining, '\n')
		if index == -1 {
			break
		}
		w.callback(string(trimCarriageReturn(remaining[:index])))
		processed += index + 1
		remaining = remaining[index+1:]
	}

	if processed > 0 {
		leftover := len(w.buffer) - processed
		if leftover > 0 {
			copy(w.buffer[:leftover], w.buffer[processed:])
		}
		w.buffer = w.buffer[:leftover]
	}

	return len(buffer), nil
}

// Logger is the main logger type. It has the novel property that it still
// functions if nil, in which case it is silent at every level. It wraps the
// standard logger provided by the log package, so it respects any flags set
// for that logger. It is safe for concurrent usage.
type Logger struct {
	// level is the level at or below which this logger emits output.
	level Level
	// prefix is any prefix specified for the logger.
	prefix string
}

// New creates a root logger at the given level.
func New(level Level) *Logger {
	return &Logger{level: level}
}

// NewForVerbosity creates a root logger from a CLI verbosity count and quiet
// flag, the same shape every holdfast subcommand accepts.
func NewForVerbosity(verbose int, quiet bool) *Logger {
	return New(LevelForVerbosity(verbose, quiet))
}

// Level reports the logger's configured level. A nil logger reports
// LevelDisabled.
func (l *Logger) Level() Level {
	if l == nil {
		return LevelDisabled
	}
	return l.level
}

// Quiet reports whether the logger is fully disabled.
func (l *Logger) Quiet() bool {
	return l.Level() == LevelDisabled
}

// Sublogger creates a new sublogger with the specified name, inheriting the
// parent's level.
func (l *Logger) Sublogger(name string) *Logger {
	if l == nil {
		return nil
	}
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{level: l.level, prefix: prefix}
}

// output is the internal logging method.
func (l *Logger) output(calldepth int, line string) {
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}
	log.Output(calldepth, line)
}

// emit logs line if the logger's level is at least min.
func (l *Logger) emit(min Level, line string) {
	if l != nil && l.level >= min {
		l.output(4, line)
	}
}

// Error logs error information with an error prefix and red color. It is
// emitted at LevelError and above.
func (l *Logger) Error(err error) {
	l.emit(LevelError, color.RedString("Error: %v", err))
}

// Warn logs error information with a warning prefix and yellow color. It is
// emitted at LevelWarn and above.
func (l *Logger) Warn(v ...interface{}) {
	l.emit(LevelWarn, color.YellowString("Warning: %s", fmt.Sprint(v...)))
}

// Warnf is Warn with Printf-style formatting.
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.emit(LevelWarn, color.YellowString("Warning: %s", fmt.Sprintf(format, v...)))
}

// Info logs basic execution information. It is emitted at LevelInfo and
// above.
func (l *Logger) Info(v ...interface{}) {
	l.emit(LevelInfo, fmt.Sprint(v...))
}

// Infof is Info with Printf-style formatting.
func (l *Logger) Infof(format string, v ...interface{}) {
	l.emit(LevelInfo, fmt.Sprintf(format, v...))
}

// Debug logs advanced execution information. It is emitted at LevelDebug and
// above.
func (l *Logger) Debug(v ...interface{}) {
	l.emit(LevelDebug, fmt.Sprint(v...))
}

// Debugf is Debug with Printf-style formatting.
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.emit(LevelDebug, fmt.Sprintf(format, v...))
}

// Trace logs low-level per-file execution information. It is emitted at
// LevelTrace only.
func (l *Logger) Trace(v ...interface{}) {
	l.emit(LevelTrace, fmt.Sprint(v...))
}

// Tracef is Trace with Printf-style formatting.
func (l *Logger) Tracef(format string, v ...interface{}) {
	l.emit(LevelTrace, fmt.Sprintf(format, v...))
}

// Writer returns an io.Writer that writes lines at LevelInfo using Info.
func (l *Logger) Writer() io.Writer {
	if l.Level() < LevelInfo {
		return io.Discard
	}
	return &writer{callback: func(s string) { l.Info(s) }}
}
