package logging

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap/zapcore"
)

// MirrorFunc receives every record emitted through this package so it can be
// forwarded to a secondary sink (for example an OTLP log exporter). It must
// not call back into the logger.
type MirrorFunc func(ctx context.Context, level Level, msg string, args ...any)

var mirrorFn atomic.Pointer[MirrorFunc]

// SetMirror installs fn as the process-wide log mirror. Passing nil removes
// the current mirror.
func SetMirror(fn MirrorFunc) {
	if fn == nil {
		mirrorFn.Store(nil)
		return
	}
	mirrorFn.Store(&fn)
}

func mirror(ctx context.Context, level zapcore.Level, msg string, args []any) {
	fn := mirrorFn.Load()
	if fn == nil {
		return
	}
	(*fn)(ctx, level, msg, args...)
}
