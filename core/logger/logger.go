// Package logger defines the logging interface used by the control loop and
// its adapters. Implementations live in infra/logger.
package logger

// Logger is a leveled printf-style logger. Debugw attaches structured fields,
// for example the per-consumer inputs of an allocation.
type Logger interface {
	Debugf(format string, args ...any)
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
