package state

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
)

// Snapshot captures a portfolio at a point in time.
type Snapshot struct {
	PortfolioID uint            `json:"portfolioId"`
	Name        string          `json:"name"`
	Exchange    string          `json:"exchange"`
	Timestamp   time.Time       `json:"timestamp"`
	Cash        decimal.Decimal `json:"cash"`
	Positions   []PositionEntry `json:"positions"`
}

// PositionEntry is a single symbol position entry.
type PositionEntry struct {
	Symbol string `json:"symbol"`
	Units  int64  `json:"units"`
}

// Snapshot copies the current state, positions sorted by symbol.
func (p *Portfolio) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := make([]PositionEntry, 0, len(p.positions))
	for symbol, units := range p.positions {
		entries = append(entries, PositionEntry{
			Symbol: symbol,
			Units:  units,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Symbol < entries[j].Symbol
	})
	return Snapshot{
		PortfolioID: p.ID,
		Name:        p.Name,
		Exchange:    p.Exchange,
		Timestamp:   time.Now().UTC(),
		Cash:        p.cash,
		Positions:   entries,
	}
}

// Restore builds a portfolio from a snapshot.
func Restore(snapshot Snapshot) *Portfolio {
	positions := make(map[string]int64, len(snapshot.Positions))
	for _, entry := range snapshot.Positions {
		positions[entry.Symbol] = entry.Units
	}
	p := NewPortfolio(snapshot.PortfolioID, snapshot.Name, snapshot.Cash, positions)
	p.Exchange = snapshot.Exchange
	return p
}

// WriteSnapshot writes a snapshot to disk as JSON.
func WriteSnapshot(path string, snapshot Snapshot) error {
	data, err := sonic.ConfigStd.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadSnapshot loads a snapshot from disk.
func ReadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := sonic.ConfigStd.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// CompareSnapshots checks that cash and positions match.
func CompareSnapshots(expected, actual Snapshot) error {
	if !expected.Cash.Equal(actual.Cash) {
		return fmt.Errorf("snapshot cash mismatch: expected=%s actual=%s", expected.Cash, actual.Cash)
	}
	if len(expected.Positions) != len(actual.Positions) {
		return fmt.Errorf("snapshot length mismatch: expected=%d actual=%d", len(expected.Positions), len(actual.Positions))
	}
	expectedMap := make(map[string]int64, len(expected.Positions))
	for _, entry := range expected.Positions {
		expectedMap[entry.Symbol] = entry.Units
	}
	for _, entry := range actual.Positions {
		want, ok := expectedMap[entry.Symbol]
		if !ok {
			return fmt.Errorf("snapshot missing symbol: %s", entry.Symbol)
		}
		if want != entry.Units {
			return fmt.Errorf("snapshot units mismatch: symbol=%s expected=%d actual=%d", entry.Symbol, want, entry.Units)
		}
	}
	return nil
}
