package index

import (
	"fmt"
	"os"
	"path/filepath"

	"psync-go/internal/config"
	"psync-go/internal/psync"
)

// NewJournalFromConfig creates a Journal implementation based on the
// journal config type.
func NewJournalFromConfig(cfg config.JournalConfig, clock psync.Clock) (psync.Journal, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryJournal(clock), nil
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("sqlite journal requires data_dir to be set")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating journal data directory: %w", err)
		}
		return NewSQLiteJournal(filepath.Join(cfg.DataDir, "psync.db"), clock)
	default:
		return nil, fmt.Errorf("unknown journal type: %s", cfg.Type)
	}
}
