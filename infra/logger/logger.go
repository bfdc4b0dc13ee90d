package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	corelogger "github.com/kilianp07/solarcharge/core/logger"
)

type Logger = corelogger.Logger

// Output formats accepted by Configure.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

var (
	mu     sync.RWMutex
	output io.Writer = os.Stdout
	format           = FormatJSON
)

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any)         {}
func (NopLogger) Debugw(string, map[string]any) {}
func (NopLogger) Infof(string, ...any)          {}
func (NopLogger) Warnf(string, ...any)          {}
func (NopLogger) Errorf(string, ...any)         {}

// Configure sets the minimum level of every logger and the output format of
// loggers created afterwards. Empty values select info and json.
func Configure(level, outFormat string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	switch outFormat {
	case "":
		outFormat = FormatJSON
	case FormatJSON, FormatConsole:
	default:
		return fmt.Errorf("unknown log format %q", outFormat)
	}
	zerolog.SetGlobalLevel(lvl)
	mu.Lock()
	format = outFormat
	mu.Unlock()
	return nil
}

// ParseLevel accepts zerolog level names; empty means info.
func ParseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log level: %w", err)
	}
	return lvl, nil
}

// New returns a Logger tagging every entry with component.
func New(component string) Logger {
	mu.RLock()
	w, f := output, format
	mu.RUnlock()
	if f == FormatConsole {
		w = consoleWriter(w)
	}
	return NewWithWriter(component, w)
}
