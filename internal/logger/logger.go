// Package logger provides the process-wide leveled logger.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// Level is a logging severity.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = map[string]Level{
	"debug": DebugLevel,
	"info":  InfoLevel,
	"warn":  WarnLevel,
	"error": ErrorLevel,
}

var (
	threshold = InfoLevel
	std       = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
)

// Init sets the severity threshold and output format for the default
// logger. Unknown levels fall back to info.
func Init(level, format string) {
	l, ok := levelNames[strings.ToLower(level)]
	if !ok {
		l = InfoLevel
	}
	threshold = l

	flags := log.LstdFlags | log.Lmicroseconds
	if strings.ToLower(format) == "text" {
		flags |= log.Lshortfile
	}
	std = log.New(os.Stderr, "", flags)
}

func emit(l Level, tag, format string, args ...interface{}) {
	if l < threshold {
		return
	}
	_ = std.Output(3, fmt.Sprintf(tag+format, args...))
}

func Debug(format string, args ...interface{}) { emit(DebugLevel, "[DEBUG] ", format, args...) }
func Info(format string, args ...interface{})  { emit(InfoLevel, "[INFO] ", format, args...) }
func Warn(format string, args ...interface{})  { emit(WarnLevel, "[WARN] ", format, args...) }
func Error(format string, args ...interface{}) { emit(ErrorLevel, "[ERROR] ", format, args...) }

// Fatal logs regardless of threshold and exits the process.
func Fatal(format string, args ...interface{}) {
	_ = std.Output(2, fmt.Sprintf("[FATAL] "+format, args...))
	os.Exit(1)
}
