package persistence

import (
	"errors"
	"fmt"

	"github.com/ytget/media-taskd/internal/config"
	"github.com/ytget/media-taskd/internal/download"
	"github.com/ytget/media-taskd/internal/logger"
)

// Drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

var ErrInvalidConfig = errors.New("persistence: invalid configuration")

// Open returns the gateway selected by cfg.Driver. DriverNone yields a nil
// gateway: tasks then live only in memory.
func Open(cfg config.PersistenceConfig, log *logger.Logger) (download.Gateway, error) {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Named("persistence")

	switch cfg.Driver {
	case DriverSQLite, "":
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: sqlite path is empty", ErrInvalidConfig)
		}
		gateway, err := OpenSQLite(cfg.Path, log)
		if err != nil {
			return nil, err
		}
		return gateway, nil
	case DriverPostgres:
		gateway, err := OpenPostgres(cfg.DSN, log)
		if err != nil {
			return nil, err
		}
		return gateway, nil
	case DriverNone:
		log.Infow("persistence_disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", ErrInvalidConfig, cfg.Driver)
	}
}
