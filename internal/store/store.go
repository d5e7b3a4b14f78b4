// Package store persists strategies, portfolios, jobs and market data.
package store

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"algotrading/internal/errors"
	"algotrading/internal/schema"
	"algotrading/internal/state"
	"algotrading/internal/strategy"
	"algotrading/pkg/exception"
)

// Store is the gorm backed repository.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates every table.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(models()...)
}

func notFound(err error, what string) error {
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrap(exception.ErrRecordNotFound, what)
	}
	return errors.Wrap(err, what)
}

// Strategies loads definitions by name, in the order given. Names without a
// stored row are returned in missing, in the order given.
func (s *Store) Strategies(ctx context.Context, names []string) (defs []strategy.Definition, missing []string, err error) {
	var rows []Strategy
	if err := s.db.WithContext(ctx).Where("name IN ?", names).Find(&rows).Error; err != nil {
		return nil, nil, errors.Wrap(err, "query strategies")
	}

	byName := make(map[string]Strategy, len(rows))
	for _, r := range rows {
		byName[r.Name] = r
	}
	defs = make([]strategy.Definition, 0, len(names))
	for _, name := range names {
		r, ok := byName[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		defs = append(defs, toDefinition(r))
	}
	return defs, missing, nil
}

// AllStrategies returns every strategy ordered by id.
func (s *Store) AllStrategies(ctx context.Context) ([]strategy.Definition, error) {
	var rows []Strategy
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "query strategies")
	}
	defs := make([]strategy.Definition, 0, len(rows))
	for _, r := range rows {
		defs = append(defs, toDefinition(r))
	}
	return defs, nil
}

func (s *Store) StrategyByID(ctx context.Context, id uint) (strategy.Definition, error) {
	var row Strategy
	if err := s.db.WithContext(ctx).First(&row, id).Error; err != nil {
		return strategy.Definition{}, notFound(err, "strategy")
	}
	return toDefinition(row), nil
}

func toDefinition(r Strategy) strategy.Definition {
	return strategy.Definition{
		ID:            r.ID,
		Name:          r.Name,
		Method:        r.Method,
		Args:          strategy.ParseArgs(r.Args),
		Symbol:        r.Symbol,
		RiskProfileID: r.RiskProfileID,
	}
}

// RiskLimits returns the base limits of a profile.
func (s *Store) RiskLimits(ctx context.Context, profileID uint) (map[string]decimal.Decimal, error) {
	var profile RiskProfile
	err := s.db.WithContext(ctx).Preload("Limits").First(&profile, profileID).Error
	if err != nil {
		return nil, notFound(err, "risk profile")
	}
	limits := make(map[string]decimal.Decimal, len(profile.Limits))
	for _, l := range profile.Limits {
		limits[l.Name] = l.Value
	}
	return limits, nil
}

// LoadPortfolio reads a portfolio and its assets by name.
func (s *Store) LoadPortfolio(ctx context.Context, name string) (state.Snapshot, error) {
	var p Portfolio
	err := s.db.WithContext(ctx).Preload("Assets").Where("name = ?", name).First(&p).Error
	if err != nil {
		return state.Snapshot{}, notFound(err, "portfolio "+name)
	}
	return toSnapshot(p), nil
}

func (s *Store) PortfolioByID(ctx context.Context, id uint) (state.Snapshot, error) {
	var p Portfolio
	if err := s.db.WithContext(ctx).Preload("Assets").First(&p, id).Error; err != nil {
		return state.Snapshot{}, notFound(err, "portfolio")
	}
	return toSnapshot(p), nil
}

func toSnapshot(p Portfolio) state.Snapshot {
	snap := state.Snapshot{
		PortfolioID: p.ID,
		Name:        p.Name,
		Exchange:    p.ExchangeName,
		Timestamp:   p.UpdatedAt,
		Cash:        p.Capital,
		Positions:   make([]state.PositionEntry, 0, len(p.Assets)),
	}
	for _, a := range p.Assets {
		snap.Positions = append(snap.Positions, state.PositionEntry{Symbol: a.Symbol, Units: a.Units})
	}
	return snap
}

// SavePortfolio writes cash and positions in one transaction.
func (s *Store) SavePortfolio(ctx context.Context, snap state.Snapshot) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Portfolio{}).Where("id = ?", snap.PortfolioID).Update("capital", snap.Cash)
		if res.Error != nil {
			return errors.Wrap(res.Error, "update capital")
		}
		if res.RowsAffected == 0 {
			return errors.Wrapf(exception.ErrRecordNotFound, "portfolio %d", snap.PortfolioID)
		}
		if len(snap.Positions) == 0 {
			return nil
		}

		assets := make([]Asset, 0, len(snap.Positions))
		for _, p := range snap.Positions {
			assets = append(assets, Asset{PortfolioID: snap.PortfolioID, Symbol: p.Symbol, Units: p.Units})
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "portfolio_id"}, {Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{"units"}),
		}).Create(&assets).Error
		return errors.Wrap(err, "upsert assets")
	})
}

func (s *Store) SaveValuation(ctx context.Context, portfolioID uint, at time.Time, value decimal.Decimal) error {
	row := Valuation{PortfolioID: portfolioID, ValuedAt: at.UTC(), Value: value}
	return errors.Wrap(s.db.WithContext(ctx).Create(&row).Error, "insert valuation")
}

// Valuations returns the history of a portfolio at or after since, oldest first.
func (s *Store) Valuations(ctx context.Context, portfolioID uint, since time.Time) ([]Valuation, error) {
	var rows []Valuation
	err := s.db.WithContext(ctx).
		Where("portfolio_id = ? AND valued_at >= ?", portfolioID, since.UTC()).
		Order("valued_at").
		Find(&rows).Error
	return rows, errors.Wrap(err, "query valuations")
}

// SaveSignals records the reconciled signals of a job.
func (s *Store) SaveSignals(ctx context.Context, jobID string, signals []schema.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	rows := make([]Signal, 0, len(signals))
	for _, sig := range signals {
		rows = append(rows, Signal{
			JobID:       jobID,
			Strategy:    sig.Strategy,
			Symbol:      sig.Symbol,
			Action:      string(sig.Action),
			TargetValue: sig.TargetValue,
			GeneratedAt: sig.Timestamp.UTC(),
		})
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(&rows).Error, "insert signals")
}

func (s *Store) Signals(ctx context.Context, jobID string) ([]Signal, error) {
	var rows []Signal
	err := s.db.WithContext(ctx).Where("job_id = ?", jobID).Order("id").Find(&rows).Error
	return rows, errors.Wrap(err, "query signals")
}

// SaveJob inserts or updates a job row.
func (s *Store) SaveJob(ctx context.Context, job Job) error {
	return errors.Wrap(s.db.WithContext(ctx).Save(&job).Error, "save job")
}

func (s *Store) Job(ctx context.Context, id string) (Job, error) {
	var job Job
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		return Job{}, notFound(err, "job "+id)
	}
	return job, nil
}

// Ticks returns ticks of symbol strictly between after and before, oldest first.
func (s *Store) Ticks(ctx context.Context, symbol string, after, before time.Time) ([]schema.Tick, error) {
	var rows []Tick
	err := s.db.WithContext(ctx).
		Where("symbol = ? AND observed_at > ? AND observed_at < ?", symbol, after.UTC(), before.UTC()).
		Order("observed_at").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "query ticks")
	}
	ticks := make([]schema.Tick, 0, len(rows))
	for _, r := range rows {
		ticks = append(ticks, schema.Tick{Symbol: r.Symbol, Price: r.Price, Volume: r.Volume, ObservedAt: r.ObservedAt.UTC()})
	}
	return ticks, nil
}

// LatestTickTime returns the newest stored tick time of symbol, zero when there is none.
func (s *Store) LatestTickTime(ctx context.Context, symbol string) (time.Time, error) {
	var row Tick
	err := s.db.WithContext(ctx).Where("symbol = ?", symbol).Order("observed_at DESC").Limit(1).Find(&row).Error
	if err != nil {
		return time.Time{}, errors.Wrap(err, "query latest tick")
	}
	if row.ID == 0 {
		return time.Time{}, nil
	}
	return row.ObservedAt.UTC(), nil
}

func (s *Store) SaveTicks(ctx context.Context, ticks []schema.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	rows := make([]Tick, 0, len(ticks))
	for _, t := range ticks {
		rows = append(rows, Tick{Symbol: t.Symbol, Price: t.Price, Volume: t.Volume, ObservedAt: t.ObservedAt.UTC()})
	}
	return errors.Wrap(s.db.WithContext(ctx).CreateInBatches(&rows, 500).Error, "insert ticks")
}
