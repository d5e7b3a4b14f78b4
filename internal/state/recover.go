package state

import (
	"context"
	"fmt"

	"algotrading/internal/errors"
)

// SnapshotSource loads the persisted state of a portfolio.
type SnapshotSource interface {
	LoadPortfolio(ctx context.Context, name string) (Snapshot, error)
}

// RecoverConfig controls where a portfolio is loaded from.
type RecoverConfig struct {
	Name string
	// SnapshotPath, when set, is preferred over the source.
	SnapshotPath string
}

// Recover loads a portfolio from a snapshot file or from the source.
func Recover(ctx context.Context, src SnapshotSource, cfg RecoverConfig) (*Portfolio, error) {
	if cfg.SnapshotPath != "" {
		snapshot, err := ReadSnapshot(cfg.SnapshotPath)
		if err != nil {
			return nil, errors.Wrapf(err, "read snapshot %s", cfg.SnapshotPath)
		}
		if cfg.Name != "" && snapshot.Name != cfg.Name {
			return nil, fmt.Errorf("snapshot %s holds portfolio %q, want %q", cfg.SnapshotPath, snapshot.Name, cfg.Name)
		}
		return Restore(snapshot), nil
	}

	if src == nil {
		return nil, fmt.Errorf("no snapshot path and no source for portfolio %q", cfg.Name)
	}
	snapshot, err := src.LoadPortfolio(ctx, cfg.Name)
	if err != nil {
		return nil, errors.Wrapf(err, "load portfolio %s", cfg.Name)
	}
	return Restore(snapshot), nil
}
