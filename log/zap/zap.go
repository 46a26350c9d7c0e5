// Package zap adapts a *zap.Logger to writebehind.Logger.
package zap

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/writebehind"
)

var _ writebehind.Logger = Logger{}

type Logger struct{ L *zap.Logger }

// New wraps l; a nil l discards everything.
func New(l *zap.Logger) Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return Logger{L: l}
}

func (z Logger) Debug(msg string, f writebehind.Fields) { z.log(zapcore.DebugLevel, msg, f) }
func (z Logger) Info(msg string, f writebehind.Fields)  { z.log(zapcore.InfoLevel, msg, f) }
func (z Logger) Warn(msg string, f writebehind.Fields)  { z.log(zapcore.WarnLevel, msg, f) }
func (z Logger) Error(msg string, f writebehind.Fields) { z.log(zapcore.ErrorLevel, msg, f) }

// log skips building fields when the level is disabled.
func (z Logger) log(lvl zapcore.Level, msg string, f writebehind.Fields) {
	if ce := z.L.Check(lvl, msg); ce != nil {
		ce.Write(fields(f)...)
	}
}

func fields(f writebehind.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(f))
	for _, k := range keys {
		if err, ok := f[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, f[k]))
	}
	return out
}
