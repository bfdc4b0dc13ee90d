package plugins

import (
	"github.com/kilianp07/solarcharge/config"
	"github.com/kilianp07/solarcharge/core/control/logging"
)

func init() {
	RegisterLogStore(config.LogBackendJSONL, func(cfg config.LoggingConfig) (logging.LogStore, error) {
		return logging.NewJSONLStore(cfg.Path)
	})
	RegisterLogStore(config.LogBackendRotating, func(cfg config.LoggingConfig) (logging.LogStore, error) {
		return logging.NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	})
	RegisterLogStore(config.LogBackendSQLite, func(cfg config.LoggingConfig) (logging.LogStore, error) {
		return logging.NewSQLiteStore(cfg.Path)
	})
}
