package log

import (
	"io"
	"os"
	"strings"

	"github.com/op/go-logging"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Level logging.Level

// The levels that can be passed to the SetLevel function.
const (
	Trace Level = iota
	Debug
	Info
	Warning
	Error
	Critical
	Off
)

// The logger format
var format = logging.MustStringFormatter(
	`%{color}[%{time:15:04:05.000}] [%{module}] [%{level}]%{color:reset} %{message}`,
)

// The internal leveled logger backend
var leveledBackend logging.LeveledBackend

// The logger interface
type Logger interface {
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})

	Info(v ...interface{})
	Infof(format string, v ...interface{})

	Warning(v ...interface{})
	Warningf(format string, v ...interface{})

	Error(v ...interface{})
	Errorf(format string, v ...interface{})
}

// Create a new named logger.
func New(name string) Logger {
	return logging.MustGetLogger(name)
}

// Logging options applied at configure time.
type Config struct {
	ToStdout bool
	Level    string
	File     string
}

// Configure the logging backend from the given options. When File is set a
// rotating file sink is used; combined with ToStdout both sinks receive
// every record. A level of "OFF" discards all output.
func Configure(cfg Config) error {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return err
	}

	sinks := make([]io.Writer, 0, 2)
	if cfg.ToStdout {
		sinks = append(sinks, os.Stdout)
	}
	if cfg.File != "" {
		sinks = append(sinks, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    64, // megabytes
			MaxBackups: 4,
		})
	}

	if level == Off || len(sinks) == 0 {
		SetSink(io.Discard)
		SetLevel(Critical)
		return nil
	}

	SetSink(io.MultiWriter(sinks...))
	SetLevel(level)
	return nil
}

// Parse a level name. Unknown names return Info together with an
// *UnknownLevelError.
func ParseLevel(name string) (Level, error) {
	switch strings.ToUpper(name) {
	case "TRACE":
		return Trace, nil
	case "DEBUG":
		return Debug, nil
	case "INFO", "":
		return Info, nil
	case "WARN", "WARNING":
		return Warning, nil
	case "ERROR":
		return Error, nil
	case "CRITICAL":
		return Critical, nil
	case "OFF":
		return Off, nil
	}
	return Info, &UnknownLevelError{Name: name}
}

type UnknownLevelError struct {
	Name string
}

func (e *UnknownLevelError) Error() string {
	return "log: unknown level " + e.Name
}

// Override the backend output sink.
func SetSink(sink io.Writer) {
	backend := logging.NewLogBackend(sink, "", 0)
	backendWithFormatter := logging.NewBackendFormatter(backend, format)
	leveledBackend = logging.AddModuleLevel(backendWithFormatter)
	leveledBackend.SetLevel(logging.INFO, "")
	logging.SetBackend(leveledBackend)
}

// Set logger verbosity.
func SetLevel(level Level) {
	var loggerLevel logging.Level

	switch level {
	case Trace, Debug:
		loggerLevel = logging.DEBUG
	case Info:
		loggerLevel = logging.INFO
	case Warning:
		loggerLevel = logging.WARNING
	case Error:
		loggerLevel = logging.ERROR
	case Critical, Off:
		loggerLevel = logging.CRITICAL
	}

	leveledBackend.SetLevel(loggerLevel, "")
}

func init() {
	SetSink(os.Stdout)
	SetLevel(Info)
}
