package bvar

import (
	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/zap"
)

// Logger is the logging seam used by registries and error handlers.
// *zap.SugaredLogger and go-log's *ZapEventLogger satisfy it directly.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// log is the package subsystem logger. Its level follows GOLOG_LOG_LEVEL
// (for example GOLOG_LOG_LEVEL="bvar=debug").
var log = logging.Logger("bvar")

func defaultLogger() Logger {
	return log
}

// NewZapLogger adapts a *zap.Logger to Logger.
// A nil logger yields a logger that discards everything.
func NewZapLogger(l *zap.Logger) Logger {
	if l == nil {
		return newNoopLogger()
	}
	return l.Sugar()
}

func newNoopLogger() Logger {
	return noopLogger{}
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Warnf(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}
