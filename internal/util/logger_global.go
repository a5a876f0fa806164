package util

import (
	"sync"
)

var (
	globalLogger LoggerInterface
	loggerMu     sync.RWMutex
)

// InitLogger installs the process-wide logger. Later calls are ignored so
// subcommands can share the setup done by the root command.
func InitLogger(logLevel, logFile string, debugToConsole bool) error {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if globalLogger != nil {
		return nil
	}
	logger, err := NewLogger(LoggerOptions{
		Level:          logLevel,
		File:           logFile,
		DebugToConsole: debugToConsole,
	})
	if err != nil {
		return err
	}
	globalLogger = logger
	return nil
}

// SetLogger replaces the process-wide logger and returns the previous one.
func SetLogger(logger LoggerInterface) LoggerInterface {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	prev := globalLogger
	globalLogger = logger
	return prev
}

func currentLogger() LoggerInterface {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return globalLogger
}

// Named returns a component logger derived from the global one. Before
// InitLogger it returns a logger that discards everything.
func Named(component string) LoggerInterface {
	if l := currentLogger(); l != nil {
		return l.Named(component)
	}
	return NewLoggerWithOutputs(LevelFatal + 1).Named(component)
}

func LogInfo(msg string) {
	if l := currentLogger(); l != nil {
		l.Info(msg)
	}
}

func LogInfof(format string, args ...interface{}) {
	if l := currentLogger(); l != nil {
		l.Infof(format, args...)
	}
}

func LogDebug(msg string) {
	if l := currentLogger(); l != nil {
		l.Debug(msg)
	}
}

func LogDebugf(format string, args ...interface{}) {
	if l := currentLogger(); l != nil {
		l.Debugf(format, args...)
	}
}

func LogWarn(msg string) {
	if l := currentLogger(); l != nil {
		l.Warn(msg)
	}
}

func LogWarnf(format string, args ...interface{}) {
	if l := currentLogger(); l != nil {
		l.Warnf(format, args...)
	}
}

func LogError(msg string) {
	if l := currentLogger(); l != nil {
		l.Error(msg)
	}
}

func LogErrorf(format string, args ...interface{}) {
	if l := currentLogger(); l != nil {
		l.Errorf(format, args...)
	}
}
