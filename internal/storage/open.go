package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"mediarelay/internal/users"
	logx "mediarelay/pkg/logx"
)

// Store is the persistence API used by the notification engine: the user set
// for admin fan-out and the delivery audit trail.
type Store interface {
	users.Repository

	PutUser(ctx context.Context, u users.User) error
	AppendDelivery(ctx context.Context, rec DeliveryRecord) error
	PruneDeliveries(ctx context.Context, olderThan time.Time) (removed int64, err error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
