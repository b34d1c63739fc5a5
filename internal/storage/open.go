package storage

import (
	"fmt"
	"strings"

	logx "fooddates/pkg/logx"
)

// Drivers accepted by Open.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Open returns the store selected by cfg.Driver. An empty driver means
// memory.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverMemory
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	var (
		st  Store
		err error
	)
	switch driver {
	case DriverMemory:
		st = NewMemory()
	case DriverFile:
		st, err = openFile(cfg, log)
	case DriverSQLite, "sqlite3":
		st, err = openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", driver, err)
	}
	log.Info("store opened", logx.String("path", cfg.Path))
	return st, nil
}
