package store

import (
	"context"
	"fmt"

	"fire/command/internal/config"
	"fire/command/internal/database"
	"fire/command/internal/dispatch"

	"github.com/rs/zerolog"
)

// Backend is both the call registry and the roster.
type Backend interface {
	dispatch.Registry
	dispatch.Roster
}

// Open returns the backend selected by cfg.StoreDriver and a function that
// releases it.
func Open(ctx context.Context, cfg config.Config, log zerolog.Logger) (Backend, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		log.Warn().Msg("using in-memory store; calls are lost on restart")
		return NewMemory(DemoRoster()), func() {}, nil
	case config.DriverPostgres:
		pool, err := database.Connect(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return NewPostgres(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
