package logx

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Field adds one key to a log event. Fields apply in order; a repeated key
// keeps the last value in JSON sinks.
type Field func(e *zerolog.Event)

func String(k, v string) Field  { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field {
	return func(e *zerolog.Event) { e.Int64(k, v) }
}
func Bool(k string, v bool) Field {
	return func(e *zerolog.Event) { e.Bool(k, v) }
}
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Any(k string, v any) Field { return func(e *zerolog.Event) { e.Interface(k, v) } }

// Err is a no-op for nil errors.
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Stack attaches a captured stack trace, usually debug.Stack().
func Stack(stack string) Field {
	return func(e *zerolog.Event) {
		if strings.TrimSpace(stack) != "" {
			e.Str("stack", stack)
		}
	}
}
