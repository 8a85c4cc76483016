package logger

import (
	"fmt"
	"runtime"
)

var levelNames = [...]string{
	LogLevelTrace: "[TRACE]",
	LogLevelDebug: "[DEBUG]",
	LogLevelInfo:  "[INFO]",
	LogLevelWarn:  "[WARN]",
	LogLevelError: "[ERROR]",
}

func levelString(level int) string {
	if level < 0 || level >= len(levelNames) {
		return ""
	}
	return levelNames[level]
}

func logPrint(level int, format string, value ...any) {
	if logLevel <= level {
		log.Printf(levelString(level)+" "+format, value...)
	}
}

func logErrPrefix(level int) string {
	_, file, line, ok := runtime.Caller(level + 2)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d ", file, line)
}
