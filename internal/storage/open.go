package storage

import (
	"fmt"
	"sort"
	"strings"

	"wovbot/internal/task/scheduler"
	logx "wovbot/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (JobStore, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	log = log.With(logx.String("driver", driver))

	switch driver {
	case "", "none", "memory":
		log.Warn("using in-memory job store; jobs will not survive a restart")
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}

// sortDefs gives LoadAll a stable order: creation time, then id.
func sortDefs(defs []scheduler.JobDefinition) {
	sort.Slice(defs, func(i, j int) bool {
		if !defs[i].CreatedAt.Equal(defs[j].CreatedAt) {
			return defs[i].CreatedAt.Before(defs[j].CreatedAt)
		}
		return defs[i].ID.String() < defs[j].ID.String()
	})
}
