package storage

import (
	"context"
	"errors"
	"strings"

	logx "tallybot/pkg/logx"
)

// Store is the persistence API used by the app around the core.
// All methods are best-effort from the caller's perspective.
type Store interface {
	SaveStatus(ctx context.Context, st Status) error
	LoadStatus(ctx context.Context) (Status, bool, error)

	AppendDedup(ctx context.Context, channel, seq int64) error
	PurgeDedup(ctx context.Context, channel int64) error
	LoadDedup(ctx context.Context) ([]DedupKey, error)

	SaveReportInterval(ctx context.Context, channel int64, minutes int) error
	DeleteReportInterval(ctx context.Context, channel int64) error
	LoadReportIntervals(ctx context.Context) (map[int64]int, error)

	// Compact performs periodic housekeeping (journal compaction /
	// checkpointing). Safe to call at any time.
	Compact(ctx context.Context) error

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
