package store

import (
	"context"
	"io"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"algotrading/internal/errors"
	"algotrading/pkg/exception"
)

// Fixture is the YAML layout accepted by Seed.
type Fixture struct {
	RiskProfiles []FixtureRiskProfile `yaml:"risk_profiles"`
	Strategies   []FixtureStrategy    `yaml:"strategies"`
	Portfolios   []FixturePortfolio   `yaml:"portfolios"`
	Ticks        []FixtureTick        `yaml:"ticks"`
}

type FixtureRiskProfile struct {
	Name   string            `yaml:"name"`
	Limits map[string]string `yaml:"limits"`
}

type FixtureStrategy struct {
	Name        string `yaml:"name"`
	Method      string `yaml:"method"`
	Args        string `yaml:"args"`
	Symbol      string `yaml:"symbol"`
	RiskProfile string `yaml:"risk_profile"`
}

type FixturePortfolio struct {
	Name     string           `yaml:"name"`
	Exchange string           `yaml:"exchange"`
	Capital  string           `yaml:"capital"`
	Assets   map[string]int64 `yaml:"assets"`
}

type FixtureTick struct {
	Symbol     string    `yaml:"symbol"`
	Price      string    `yaml:"price"`
	Volume     int64     `yaml:"volume"`
	ObservedAt time.Time `yaml:"observed_at"`
}

// ReadFixture decodes a fixture.
func ReadFixture(r io.Reader) (Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return Fixture{}, errors.Wrap(err, "decode fixture")
	}
	return f, nil
}

// SeedFile reads a fixture file and seeds it.
func (s *Store) SeedFile(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	f, err := ReadFixture(file)
	if err != nil {
		return errors.Wrap(err, path)
	}
	return s.Seed(ctx, f)
}

// Seed inserts the fixture in one transaction. Rows are matched by name, so
// seeding twice updates instead of duplicating.
func (s *Store) Seed(ctx context.Context, f Fixture) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profileIDs := make(map[string]uint, len(f.RiskProfiles))
		for _, fp := range f.RiskProfiles {
			profile := RiskProfile{Name: fp.Name}
			if err := tx.Where(RiskProfile{Name: fp.Name}).FirstOrCreate(&profile).Error; err != nil {
				return errors.Wrapf(err, "risk profile %s", fp.Name)
			}
			profileIDs[fp.Name] = profile.ID

			names := make([]string, 0, len(fp.Limits))
			for name := range fp.Limits {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				value, err := parseDecimal(fp.Limits[name], "risk limit "+name)
				if err != nil {
					return err
				}
				limit := RiskLimit{RiskProfileID: profile.ID, Name: name, Value: value}
				err = tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "risk_profile_id"}, {Name: "name"}},
					DoUpdates: clause.AssignmentColumns([]string{"value"}),
				}).Create(&limit).Error
				if err != nil {
					return errors.Wrapf(err, "risk limit %s/%s", fp.Name, name)
				}
			}
		}

		for _, fs := range f.Strategies {
			profileID, ok := profileIDs[fs.RiskProfile]
			if !ok {
				return errors.Wrapf(exception.ErrRecordNotFound, "strategy %s: risk profile %q", fs.Name, fs.RiskProfile)
			}
			row := Strategy{Name: fs.Name}
			attrs := Strategy{RiskProfileID: profileID, Args: fs.Args, Method: fs.Method, Symbol: fs.Symbol}
			if err := tx.Where(Strategy{Name: fs.Name}).Assign(attrs).FirstOrCreate(&row).Error; err != nil {
				return errors.Wrapf(err, "strategy %s", fs.Name)
			}
		}

		for _, fp := range f.Portfolios {
			capital, err := parseDecimal(fp.Capital, "portfolio capital")
			if err != nil {
				return err
			}
			row := Portfolio{Name: fp.Name}
			attrs := Portfolio{ExchangeName: fp.Exchange, Capital: capital}
			if err := tx.Where(Portfolio{Name: fp.Name}).Assign(attrs).FirstOrCreate(&row).Error; err != nil {
				return errors.Wrapf(err, "portfolio %s", fp.Name)
			}
			for symbol, units := range fp.Assets {
				asset := Asset{PortfolioID: row.ID, Symbol: symbol, Units: units}
				err := tx.Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "portfolio_id"}, {Name: "symbol"}},
					DoUpdates: clause.AssignmentColumns([]string{"units"}),
				}).Create(&asset).Error
				if err != nil {
					return errors.Wrapf(err, "asset %s/%s", fp.Name, symbol)
				}
			}
		}

		if len(f.Ticks) > 0 {
			rows := make([]Tick, 0, len(f.Ticks))
			for _, ft := range f.Ticks {
				price, err := parseDecimal(ft.Price, "tick price")
				if err != nil {
					return err
				}
				rows = append(rows, Tick{Symbol: ft.Symbol, Price: price, Volume: ft.Volume, ObservedAt: ft.ObservedAt.UTC()})
			}
			if err := tx.CreateInBatches(&rows, 500).Error; err != nil {
				return errors.Wrap(err, "ticks")
			}
		}
		return nil
	})
}

func parseDecimal(raw, what string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.Wrapf(exception.ErrInvalidArgument, "%s %q", what, raw)
	}
	return d, nil
}
