package logger

import (
	"os"

	"go.uber.org/zap"
)

// Logger wraps a zap sugared logger with printf-style convenience methods.
type Logger struct {
	*zap.SugaredLogger
}

// New builds a logger. Development mode uses console output with debug level,
// production mode emits structured JSON at info level (or LOG_LEVEL).
func New(development bool) *Logger {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		if level := os.Getenv("LOG_LEVEL"); level != "" {
			if parsed, err := zap.ParseAtomicLevel(level); err == nil {
				cfg.Level = parsed
			}
		}
	}

	zl, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		zl = zap.NewNop()
	}
	return &Logger{zl.Sugar()}
}

// NewFromEnv builds a logger using the DEVELOPMENT environment variable.
func NewFromEnv() *Logger {
	return New(os.Getenv("DEVELOPMENT") == "true")
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.Infof(format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.Errorf(format, v...)
}

func (l *Logger) Debug(format string, v ...interface{}) {
	l.Debugf(format, v...)
}

func (l *Logger) Fatal(format string, v ...interface{}) {
	l.Fatalf(format, v...)
}

// Global logger instance
var GlobalLogger = NewFromEnv()

// Convenience functions
func Info(format string, v ...interface{}) {
	GlobalLogger.Info(format, v...)
}

func Error(format string, v ...interface{}) {
	GlobalLogger.Error(format, v...)
}

func Debug(format string, v ...interface{}) {
	GlobalLogger.Debug(format, v...)
}

func Fatal(format string, v ...interface{}) {
	GlobalLogger.Fatal(format, v...)
}

// With returns a structured child logger for fields like session or room IDs.
func With(args ...interface{}) *zap.SugaredLogger {
	return GlobalLogger.SugaredLogger.With(args...)
}
