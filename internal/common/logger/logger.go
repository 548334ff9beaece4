package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger writes one JSON line per action. The action doubles as the message
// so log queries can filter on a stable key.
type Logger struct {
	service string
	z       *zap.Logger
}

func New(service string) *Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	cfg.EncoderConfig.MessageKey = "message"
	cfg.DisableStacktrace = true

	z, err := cfg.Build()
	if err != nil {
		z = zap.NewNop()
	}
	return &Logger{
		service: service,
		z:       z.With(zap.String("service", service), zap.String("hostname", hostname())),
	}
}

// NewNop discards everything; used by tests.
func NewNop() *Logger { return &Logger{z: zap.NewNop()} }

func (l *Logger) log(level zapcore.Level, action string, fields map[string]any, err error) {
	if l == nil || l.z == nil {
		return
	}
	zf := make([]zap.Field, 0, len(fields)+2)
	zf = append(zf, zap.String("action", action))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	if ce := l.z.Check(level, action); ce != nil {
		ce.Write(zf...)
	}
}

func (l *Logger) Info(action string, fields map[string]any)  { l.log(zapcore.InfoLevel, action, fields, nil) }
func (l *Logger) Debug(action string, fields map[string]any) { l.log(zapcore.DebugLevel, action, fields, nil) }
func (l *Logger) Warn(action string, fields map[string]any)  { l.log(zapcore.WarnLevel, action, fields, nil) }
func (l *Logger) Error(action string, err error, fields map[string]any) {
	l.log(zapcore.ErrorLevel, action, fields, err)
}

// Sync flushes buffered entries; call before exit.
func (l *Logger) Sync() {
	if l != nil && l.z != nil {
		_ = l.z.Sync()
	}
}

func hostname() string { h, _ := os.Hostname(); return h }
