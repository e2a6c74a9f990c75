package logging

import (
	"os"
	"strings"

	golog "gopkg.in/op/go-logging.v1"
)

const loggerName = "otter"

var logger = golog.MustGetLogger(loggerName)

func init() {
	format := golog.MustStringFormatter(
		"%{time:2006-01-02 15:04:05.000} [%{level}] %{message}",
	)

	backend := golog.NewLogBackend(os.Stderr, "", 0)
	formatted := golog.NewBackendFormatter(backend, format)

	leveled := golog.AddModuleLevel(formatted)
	leveled.SetLevel(golog.INFO, loggerName)
	golog.SetBackend(leveled)
}

// SetLevel sets the level at which the daemon will log. An unknown level
// string falls back to INFO rather than failing the caller.
func SetLevel(level string) {
	l, err := golog.LogLevel(strings.ToUpper(level))
	if err != nil {
		l = golog.INFO
	}
	golog.SetLevel(l, loggerName)
}

// Debug logs a message at debug level.
func Debug(format string, v ...interface{}) {
	logger.Debugf(format, v...)
}

// Info logs a message at info level.
func Info(format string, v ...interface{}) {
	logger.Infof(format, v...)
}

// Warning logs a message at warning level.
func Warning(format string, v ...interface{}) {
	logger.Warningf(format, v...)
}

// Error logs a message at error level.
func Error(format string, v ...interface{}) {
	logger.Errorf(format, v...)
}
