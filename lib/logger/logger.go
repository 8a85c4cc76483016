package logger

import (
	"fmt"
	"io"
	baselog "log"
	"os"
)

const (
	LogLevelTrace = 0
	LogLevelDebug = 1
	LogLevelInfo  = 2
	LogLevelWarn  = 3
	LogLevelError = 4
)

type Config struct {
	Level *int `yaml:"Level,omitempty"`
	// Path is a prefix for .log and .err files, stdout and stderr are used when empty
	Path *string `yaml:"Path,omitempty"`
}

var (
	logLevel = LogLevelInfo
	log      = baselog.New(os.Stdout, "", baselog.Ldate|baselog.Ltime)
	logErr   = baselog.New(os.Stderr, "", baselog.Ldate|baselog.Ltime)
)

func GetLevel() int {
	return logLevel
}

func Trace(format string, values ...interface{}) {
	logPrint(LogLevelTrace, format, values...)
}

func Debug(format string, values ...any) {
	logPrint(LogLevelDebug, format, values...)
}

func Info(format string, values ...any) {
	logPrint(LogLevelInfo, format, values...)
}

func Warn(format string, values ...any) {
	logPrint(LogLevelWarn, format, values...)
}

// Error logs message and returns it as an error, so it can be used as
// return logger.Error("...")
func Error(format string, values ...any) error {
	logPrint(LogLevelError, format, values...)
	logErr.Printf(logErrPrefix(0)+format, values...)
	return fmt.Errorf(format, values...)
}

func Panic(format string, values ...any) {
	logPrint(LogLevelError, format, values...)
	logErr.Printf(logErrPrefix(0)+format, values...)
	panic(fmt.Errorf(format, values...))
}

type logWriter struct {
	level  int
	prefix string
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	logPrint(w.level, "%s %s", w.prefix, string(p))
	return len(p), nil
}

// CreateWriter is used to forward process stderr of helper commands to log
func CreateWriter(level int, prefix string) io.Writer {
	return &logWriter{
		level:  level,
		prefix: prefix,
	}
}

func InitLogger(config *Config) {
	logLevel = LogLevelInfo
	if config == nil {
		config = &Config{}
	}
	if config.Level != nil {
		logLevel = *config.Level
	}

	var logFile, logErrFile *os.File

	if config.Path == nil {
		logFile = os.Stdout
		logErrFile = os.Stderr
	} else {
		var err error
		logFile, err = os.OpenFile(*config.Path+".log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0660)
		if err != nil {
			panic(err)
		}

		logErrFile, err = os.OpenFile(*config.Path+".err", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0660)
		if err != nil {
			panic(err)
		}
	}

	flags := baselog.Ldate | baselog.Ltime
	log = baselog.New(logFile, "", flags)
	logErr = baselog.New(logErrFile, "", flags)

	Debug("Logger is initialized with level %d", logLevel)
}
