package logger

import (
	"context"
)

// stdlibWriter adapts a Logger so it can back a standard library *log.Logger,
// such as http.Server.ErrorLog.
type stdlibWriter struct {
	log   *Logger
	level Level
}

// Write implements io.Writer so the adapter can back a *log.Logger.
func (s *stdlibWriter) Write(p []byte) (int, error) {
	msg := string(p)
	if n := len(msg); n > 0 && msg[n-1] == '\n' {
		msg = msg[:n-1]
	}

	ctx := context.Background()

	switch s.level {
	case LevelDebug:
		s.log.Debugc(ctx, 5, msg)
	case LevelWarn:
		s.log.Warnc(ctx, 5, msg)
	case LevelError:
		s.log.Errorc(ctx, 5, msg)
	default:
		s.log.Infoc(ctx, 5, msg)
	}

	return len(p), nil
}
