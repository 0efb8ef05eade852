package pool

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is a diagnostic log level, per the logger collaborator contract.
type Level int

const (
	LevelVerbose Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelVerbose:
		return "verbose"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelVerbose:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

// Logger is the pool's logging collaborator. Messages are for operators;
// their exact wording is not a protocol.
type Logger interface {
	Log(msg string, level Level)
}

// LogFunc adapts a plain function into a Logger, for callers who pass
// Config.LogFunc instead of enabling the default zap sink.
type LogFunc func(msg string, level Level)

func (f LogFunc) Log(msg string, level Level) { f(msg, level) }

type noopLogger struct{}

func (noopLogger) Log(string, Level) {}

// zapLogger is the default sink used when Config.Log is true. It attaches
// the pool's name and instance id to every line so operators running more
// than one pool in a process can tell them apart.
type zapLogger struct {
	z    *zap.Logger
	name string
	id   string
}

func newZapLogger(name, id string) (*zapLogger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("pool: building default logger: %w", err)
	}
	return &zapLogger{z: z, name: name, id: id}, nil
}

func (l *zapLogger) Log(msg string, level Level) {
	if ce := l.z.Check(level.zapLevel(), msg); ce != nil {
		ce.Write(zap.String("pool", l.name), zap.String("pool_id", l.id))
	}
}

func buildLogger[T any](cfg Config[T], id string) (Logger, error) {
	if cfg.LogFunc != nil {
		return LogFunc(cfg.LogFunc), nil
	}
	if cfg.Log {
		return newZapLogger(cfg.Name, id)
	}
	return noopLogger{}, nil
}
