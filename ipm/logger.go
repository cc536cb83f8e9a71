// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ipm

import (
	"fmt"
	"io"
	"os"
)

// LogLevel controls the frequency and type of logger output
type LogLevel int

const (
	// LogNoop no output is generated (level < 0)
	LogNoop LogLevel = -1
	// LogLast print the problem banner and the exit summary only
	LogLast LogLevel = 0
	// LogIter print also one table row per iteration every `level` iterations for any (0 < level < 99)
	LogIter LogLevel = 1
	// LogTrace print details of the line search, inertia correction and barrier updates
	LogTrace LogLevel = 99
	// LogVerbose print also the iterate vectors (level > 100)
	LogVerbose LogLevel = 101
)

// Logger handles logging output for the optimizer.
// Note the writers must be thread-safe.
type Logger struct {
	Level LogLevel
	Msg   io.Writer // Writer to output log messages.
	Out   io.Writer // Writer for the iteration table.
}

func (l *Logger) enable(level LogLevel) bool {
	return l.Level >= level
}

func (l *Logger) log(format string, a ...any) {
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Msg, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Msg, format)
	}
}

func (l *Logger) out(format string, a ...any) {
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Out, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Out, format)
	}
}

func (l *Logger) vec(name string, v []float64) {
	l.log("%s =", name)
	for i, x := range v {
		l.log(" %.6e", x)
		if (i+1)%6 == 0 && i+1 < len(v) {
			l.log("\n     ")
		}
	}
	l.log("\n")
}

func newLogger(logger *Logger) Logger {
	if logger == nil {
		return Logger{Level: LogNoop, Msg: io.Discard, Out: io.Discard}
	}
	l := *logger
	if l.Msg == nil {
		l.Msg = os.Stderr
	}
	if l.Out == nil {
		l.Out = os.Stdout
	}
	return l
}
