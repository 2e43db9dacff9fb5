package logger

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"liquidator/pkg/errors"
)

var globalLogger *Logger

// Logger wraps zap.SugaredLogger. Error-level entries are also sent to the
// error tracker when one is set.
type Logger struct {
	*zap.SugaredLogger
	errorTracker errors.Tracker
	component    string
}

// Init initializes the global logger. fields are attached to every entry.
func Init(level string, env string, fields ...interface{}) error {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := config.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return err
	}

	globalLogger = &Logger{SugaredLogger: logger.Sugar().With(fields...)}
	return nil
}

// New wraps an existing zap logger. Tests use it with zap.NewNop or an observer core.
func New(z *zap.Logger) *Logger {
	return &Logger{SugaredLogger: z.Sugar()}
}

// SetErrorTracker sets the error tracker for automatic error reporting
func SetErrorTracker(tracker errors.Tracker) {
	if globalLogger != nil {
		globalLogger.errorTracker = tracker
	}
}

// WithTracker returns a copy reporting to tracker
func (l *Logger) WithTracker(tracker errors.Tracker) *Logger {
	cp := *l
	cp.errorTracker = tracker
	return &cp
}

// Get returns the global logger
func Get() *Logger {
	if globalLogger == nil {
		logger, _ := zap.NewDevelopment()
		globalLogger = &Logger{SugaredLogger: logger.Sugar()}
	}
	return globalLogger
}

// With creates a child logger with additional fields
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{
		SugaredLogger: l.SugaredLogger.With(args...),
		errorTracker:  l.errorTracker,
		component:     l.component,
	}
}

// Component is shorthand for With("component", name); the name also tags tracked errors
func (l *Logger) Component(name string) *Logger {
	child := l.With("component", name)
	child.component = name
	return child
}

// Error logs an error and optionally sends it to error tracker
func (l *Logger) Error(args ...interface{}) {
	l.SugaredLogger.Error(args...)

	if l.errorTracker != nil {
		err := errors.Wrapf(errors.ErrInternal, "%s", fmt.Sprint(args...))
		_ = l.errorTracker.CaptureError(context.Background(), err, l.tags(nil))
	}
}

// Errorf logs a formatted error and optionally sends it to error tracker
func (l *Logger) Errorf(template string, args ...interface{}) {
	l.SugaredLogger.Errorf(template, args...)

	if l.errorTracker != nil {
		_ = l.errorTracker.CaptureError(context.Background(), fmt.Errorf(template, args...), l.tags(nil))
	}
}

// Errorw logs a message with key/value pairs. The pairs become tracker tags;
// an error value under "error" is captured as the error itself.
func (l *Logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)

	if l.errorTracker == nil {
		return
	}

	tags := l.tags(keysAndValues)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, _ := keysAndValues[i].(string); key == "error" {
			if err, ok := keysAndValues[i+1].(error); ok {
				_ = l.errorTracker.CaptureError(context.Background(), errors.Wrap(err, msg), tags)
				return
			}
		}
	}
	_ = l.errorTracker.CaptureMessage(context.Background(), msg, errors.LevelError, tags)
}

func (l *Logger) tags(keysAndValues []interface{}) map[string]string {
	tags := make(map[string]string, len(keysAndValues)/2+1)
	if l.component != "" {
		tags["component"] = l.component
	}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok || key == "error" {
			continue
		}
		tags[key] = fmt.Sprint(keysAndValues[i+1])
	}
	return tags
}

// Sync flushes any buffered log entries
func Sync() error {
	if globalLogger != nil {
		return globalLogger.Sync()
	}
	return nil
}
