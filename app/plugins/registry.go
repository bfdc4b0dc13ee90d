// Package plugins maps decision log backend names to their constructors.
package plugins

import (
	"fmt"
	"sort"

	"github.com/kilianp07/solarcharge/config"
	"github.com/kilianp07/solarcharge/core/control/logging"
)

// LogStoreFactory builds a decision log store from its configuration.
type LogStoreFactory func(cfg config.LoggingConfig) (logging.LogStore, error)

var LogStores = map[string]LogStoreFactory{}

func RegisterLogStore(name string, f LogStoreFactory) { LogStores[name] = f }

// NewLogStore builds the store selected by cfg.Backend.
func NewLogStore(cfg config.LoggingConfig) (logging.LogStore, error) {
	f, ok := LogStores[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown log backend %q (known: %v)", cfg.Backend, Backends())
	}
	return f(cfg)
}

// Backends lists the registered backend names.
func Backends() []string {
	names := make([]string, 0, len(LogStores))
	for n := range LogStores {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
