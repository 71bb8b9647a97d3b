package logx

import (
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/rs/zerolog"
)

type Level = zerolog.Level

const (
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
)

// Logger is a value type; copy it freely. The zero value discards
// everything. A Logger obtained from a Service follows its Apply calls.
type Logger struct {
	svc    *Service
	fixed  *zerolog.Logger
	fields []Field
}

// Nop returns a logger that never writes. Unlike the zero Logger it reports
// !IsZero, so components can tell "explicitly silenced" from "not set".
func Nop() Logger {
	zl := zerolog.Nop()
	return Logger{fixed: &zl}
}

func (l Logger) IsZero() bool { return l.svc == nil && l.fixed == nil && len(l.fields) == 0 }

func (l Logger) zl() zerolog.Logger {
	switch {
	case l.svc != nil:
		return l.svc.current()
	case l.fixed != nil:
		return *l.fixed
	default:
		return zerolog.Nop()
	}
}

// With returns a child logger that adds fields to every line.
func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	child := l
	child.fields = make([]Field, 0, len(l.fields)+len(fields))
	child.fields = append(append(child.fields, l.fields...), fields...)
	return child
}

func (l Logger) Debug(msg string, fields ...Field) { l.emit(zerolog.DebugLevel, msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.emit(zerolog.InfoLevel, msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.emit(zerolog.WarnLevel, msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.emit(zerolog.ErrorLevel, msg, fields) }

func (l Logger) emit(level zerolog.Level, msg string, fields []Field) {
	zl := l.zl()
	e := zl.WithLevel(level)
	if e == nil {
		return
	}
	// skip: runtime.Caller, emit, Debug/Info/...
	if _, file, line, ok := runtime.Caller(2); ok {
		e.Str(zerolog.CallerFieldName, filepath.Base(file)+":"+strconv.Itoa(line))
	}
	for _, set := range [][]Field{l.fields, fields} {
		for _, f := range set {
			if f != nil {
				f(e)
			}
		}
	}
	e.Msg(msg)
}
