package logging

import (
	"fmt"
	"os"
)

// EarlyLog covers the window before the real logger is configured, which is
// the config-loading and logger-init path. Error and Fatal both exit because
// there is nothing to fall back to at that point.
type EarlyLog struct{}

func NewEarlyLog() *EarlyLog {
	return &EarlyLog{}
}

func (l *EarlyLog) Error(msg string, args ...interface{}) {
	l.emit(os.Stderr, "ERROR", msg, args...)
	os.Exit(1)
}

func (l *EarlyLog) Fatal(msg string, args ...interface{}) {
	l.emit(os.Stderr, "FATAL", msg, args...)
	os.Exit(1)
}

func (l *EarlyLog) Warn(msg string, args ...interface{}) {
	l.emit(os.Stderr, "WARN", msg, args...)
}

func (l *EarlyLog) Info(msg string, args ...interface{}) {
	l.emit(os.Stdout, "INFO", msg, args...)
}

func (l *EarlyLog) emit(w *os.File, level, msg string, args ...interface{}) {
	fmt.Fprintf(w, level+": "+msg+"\n", args...)
}
