package common

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/sirupsen/logrus"
)

// Names of the package loggers (see logger.GetLogger)
const (
	LoggerIBS     = "ibs"
	LoggerEngine  = "engine"
	LoggerStorage = "bs"
	LoggerCLI     = "cli"
)

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// ibsLogger implements the ILogger interface on top of the shared logrus
// logger. The base logger is looked up on every write, so InitLoggers also
// redirects package loggers that were created earlier.
type ibsLogger struct {
	mu    sync.RWMutex
	level logger.LogLevel
	pkg   string
}

func (l *ibsLogger) entry() *logrus.Entry {
	return base.Load().WithField("pkg", l.pkg)
}

func (l *ibsLogger) SetLevel(level logger.LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *ibsLogger) enabled(level logger.LogLevel) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level >= level
}

func (l *ibsLogger) Debugf(format string, args ...interface{}) {
	if l.enabled(logger.DEBUG) {
		l.entry().Debugf(format, args...)
	}
}

func (l *ibsLogger) Infof(format string, args ...interface{}) {
	if l.enabled(logger.INFO) {
		l.entry().Infof(format, args...)
	}
}

func (l *ibsLogger) Warningf(format string, args ...interface{}) {
	if l.enabled(logger.WARNING) {
		l.entry().Warnf(format, args...)
	}
}

func (l *ibsLogger) Errorf(format string, args ...interface{}) {
	if l.enabled(logger.ERROR) {
		l.entry().Errorf(format, args...)
	}
}

func (l *ibsLogger) Panicf(format string, args ...interface{}) {
	l.entry().Panicf(format, args...)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// base is the logrus logger every package logger writes to. The package
// loggers filter by their own level, so base always accepts everything.
var base atomic.Pointer[logrus.Logger]

// factoryOnce guards logger.SetLoggerFactory, which panics when called twice
var factoryOnce sync.Once

func init() {
	base.Store(newBase(os.Stderr, "text"))
	installFactory()
}

// installFactory makes dragonboat create every package logger through
// CreateLogger. It must run before a package logger writes its first line,
// hence the call from init.
func installFactory() {
	factoryOnce.Do(func() {
		logger.SetLoggerFactory(CreateLogger)
	})
}

func newBase(out io.Writer, format string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.DebugLevel)
	if format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l
}

// CreateLogger implements the dragonboat logger.Factory
func CreateLogger(pkgName string) logger.ILogger {
	return &ibsLogger{
		level: logger.INFO,
		pkg:   pkgName,
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info", "":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// LogConfig configures InitLoggers
type LogConfig struct {
	Level  string    // debug, info, warn, error
	Format string    // text or json
	Output io.Writer // defaults to stderr
}

// InitLoggers redirects all package loggers to a new logrus sink and sets
// their level. It may be called any number of times.
func InitLoggers(config LogConfig) error {
	level, err := ParseLogLevel(config.Level)
	if err != nil {
		return err
	}
	out := config.Output
	if out == nil {
		out = os.Stderr
	}
	if config.Format != "" && config.Format != "text" && config.Format != "json" {
		return fmt.Errorf("invalid log format: %s. must be one of text, json", config.Format)
	}

	base.Store(newBase(out, config.Format))
	installFactory()

	for _, name := range []string{LoggerIBS, LoggerEngine, LoggerStorage, LoggerCLI} {
		logger.GetLogger(name).SetLevel(level)
	}
	return nil
}
