package queue

import (
	"context"
	"fmt"

	"ferry/internal/config"
)

// Open connects to the queue backend selected by queue.driver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Queue.Driver {
	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.Queue.SQLitePath)
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.QueueDSN(), int32(cfg.Queue.MinConns), int32(cfg.Queue.MaxConns))
	default:
		return nil, fmt.Errorf("queue driver %q not supported", cfg.Queue.Driver)
	}
}
