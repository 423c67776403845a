package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

var (
	globalLogger *Logger
	once         sync.Once

	// defaultConfig is used when Get is called before Setup
	defaultConfig = Config{
		Level:      "info",
		Format:     FormatConsole,
		TimeFormat: time.RFC3339,
	}
)

// Logger wraps zerolog.Logger with a map-based field API
type Logger struct {
	zerolog.Logger
}

// LogFormat selects the output encoding
type LogFormat string

const (
	FormatJSON    LogFormat = "json"
	FormatConsole LogFormat = "console"
)

func (f LogFormat) String() string {
	return string(f)
}

// ParseLogFormat maps a string onto a LogFormat, falling back to JSON
func ParseLogFormat(format string) LogFormat {
	if strings.EqualFold(format, string(FormatConsole)) {
		return FormatConsole
	}
	return FormatJSON
}

// Config holds the logger settings
type Config struct {
	// Level is one of debug, info, warn, error, fatal, panic
	Level string
	// Format is json or console
	Format LogFormat
	// Output defaults to os.Stdout
	Output io.Writer
	// TimeFormat is used by the console writer
	TimeFormat string
}

// Get returns the process logger, initialising it with defaults on first use
func Get() *Logger {
	once.Do(func() {
		if globalLogger == nil {
			globalLogger = build(defaultConfig)
		}
	})
	return globalLogger
}

// Setup initialises the process logger. Only the first call has an effect.
func Setup(cfg Config) {
	once.Do(func() {
		globalLogger = build(cfg)
	})
}

// ResetForTesting clears the process logger. Tests only.
func ResetForTesting() {
	globalLogger = nil
	once = sync.Once{}
}

// New builds a standalone logger without touching the process logger
func New(cfg Config) *Logger {
	return build(cfg)
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

func build(cfg Config) *Logger {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level)); err == nil && parsed != zerolog.NoLevel {
			level = parsed
		}
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	var zl zerolog.Logger
	if cfg.Format == FormatConsole {
		zl = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: cfg.TimeFormat})
	} else {
		zl = zerolog.New(out)
	}
	zl = zl.Level(level).With().Timestamp().Logger()

	return &Logger{Logger: zl}
}

// WithFields returns a child logger carrying the given fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	if l == nil {
		return Get()
	}
	if len(fields) == 0 {
		return l
	}
	return &Logger{Logger: l.Logger.With().Fields(fields).Logger()}
}

// With is an alias of WithFields
func (l *Logger) With(fields map[string]interface{}) *Logger {
	return l.WithFields(fields)
}

// Component returns a child logger tagged with a component name
func (l *Logger) Component(name string) *Logger {
	return l.WithFields(map[string]interface{}{"component": name})
}

func (l *Logger) event(e *zerolog.Event, msg string, fields []map[string]interface{}) {
	if len(fields) > 0 && len(fields[0]) > 0 {
		e = e.Fields(fields[0])
	}
	e.Msg(msg)
}

// Debug logs at debug level with optional fields
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	if l == nil {
		return
	}
	l.event(l.Logger.Debug(), msg, fields)
}

// Info logs at info level with optional fields
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	if l == nil {
		return
	}
	l.event(l.Logger.Info(), msg, fields)
}

// Warn logs at warn level with optional fields
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	if l == nil {
		return
	}
	l.event(l.Logger.Warn(), msg, fields)
}

// Error logs at error level with optional fields
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	if l == nil {
		return
	}
	l.event(l.Logger.Error(), msg, fields)
}

type loggerKey struct{}

// NewContext stores the logger in ctx. A nil logger leaves ctx unchanged.
func NewContext(ctx context.Context, l *Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext returns the logger stored in ctx. Without one it returns
// fallback, or the process logger when fallback is nil.
func FromContext(ctx context.Context, fallback *Logger) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
			return l
		}
	}
	if fallback != nil {
		return fallback
	}
	return Get()
}
