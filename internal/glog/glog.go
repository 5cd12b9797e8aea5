// Copyright 2024 The Tomb Authors
// This file is part of Tomb.

// Package glog is the compiler's verbose tracing logger. It is the ambient
// logging concern every stage (lexer, parser, codegen, the tombc driver)
// reaches for instead of fmt.Println, colorized when stderr is a terminal
// and annotated with the call site that emitted the line.
package glog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-stack/stack"
	colorable "github.com/mattn/go-colorable"
	isatty "github.com/mattn/go-isatty"
)

// Level is a trace verbosity level, lowest first.
type Level int

const (
	LevelSilent Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

var levelNames = [...]string{
	LevelSilent: "SILENT",
	LevelError:  "ERROR",
	LevelWarn:   "WARN",
	LevelInfo:   "INFO",
	LevelDebug:  "DEBUG",
	LevelTrace:  "TRACE",
}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "UNKNOWN"
}

var levelColors = [...]int{
	LevelError: 31, // red
	LevelWarn:  33, // yellow
	LevelInfo:  36, // cyan
	LevelDebug: 90, // bright black
	LevelTrace: 90,
}

// Logger is a leveled, stage-tagged tracer. The zero value is not usable;
// construct one with New.
type Logger struct {
	mu      sync.Mutex
	out     io.Writer
	level   Level
	color   bool
	stage   string
}

// New builds a Logger writing to w at the given level. When w is *os.File
// and refers to a terminal, output is colorized by level and passed through
// go-colorable so ANSI codes render on Windows consoles too.
func New(w io.Writer, level Level) *Logger {
	color := false
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		w = colorable.NewColorable(f)
		color = true
	}
	return &Logger{out: w, level: level, color: color}
}

// Default is the logger tombc's driver writes to; its integer -v flag sets
// the level.
var Default = New(os.Stderr, LevelWarn)

// WithStage returns a copy of l tagging every line with stage (e.g. "lexer",
// "codegen"), the way the compiler's pipeline stages identify themselves in
// a trace.
func (l *Logger) WithStage(stage string) *Logger {
	return &Logger{out: l.out, level: l.level, color: l.color, stage: stage}
}

// SetLevel changes the minimum level that reaches the writer.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level > l.level || level == LevelSilent {
		return
	}

	msg := fmt.Sprintf(format, args...)
	ts := timeNow().Format("15:04:05.000")
	caller := ""
	if frames := stack.Trace().TrimBelow(stack.Caller(3)).TrimRuntime(); len(frames) > 0 {
		caller = fmt.Sprintf("%+v", frames[0])
	}

	var line string
	switch {
	case l.stage != "":
		line = fmt.Sprintf("%s [%s] %-5s %s (%s)\n", ts, l.stage, level, msg, caller)
	default:
		line = fmt.Sprintf("%s %-5s %s (%s)\n", ts, level, msg, caller)
	}

	if l.color {
		code := levelColors[level]
		line = fmt.Sprintf("\x1b[%dm%s\x1b[0m", code, line)
	}
	fmt.Fprint(l.out, line)
}

func (l *Logger) Error(format string, args ...interface{}) { l.log(LevelError, format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.log(LevelWarn, format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.log(LevelInfo, format, args...) }
func (l *Logger) Debug(format string, args ...interface{}) { l.log(LevelDebug, format, args...) }
func (l *Logger) Trace(format string, args ...interface{}) { l.log(LevelTrace, format, args...) }

// timeNow is a var, not a direct time.Now() call, so tests can stub it.
var timeNow = time.Now
