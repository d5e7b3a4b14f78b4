package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// Strategy is a configured strategy row.
type Strategy struct {
	ID            uint   `gorm:"primaryKey"`
	Name          string `gorm:"uniqueIndex;size:128;not null"`
	RiskProfileID uint   `gorm:"index;not null"`
	Args          string `gorm:"size:1024"`
	Method        string `gorm:"size:128;not null"`
	Symbol        string `gorm:"size:64;not null"`
}

// RiskProfile groups the base limits shared by strategies.
type RiskProfile struct {
	ID     uint        `gorm:"primaryKey"`
	Name   string      `gorm:"uniqueIndex;size:128;not null"`
	Limits []RiskLimit `gorm:"constraint:OnDelete:CASCADE"`
}

// RiskLimit is one named base limit of a profile.
type RiskLimit struct {
	ID            uint            `gorm:"primaryKey"`
	RiskProfileID uint            `gorm:"uniqueIndex:idx_profile_limit;not null"`
	Name          string          `gorm:"uniqueIndex:idx_profile_limit;size:64;not null"`
	Value         decimal.Decimal `gorm:"type:decimal(30,10);not null"`
}

type Portfolio struct {
	ID           uint            `gorm:"primaryKey"`
	Name         string          `gorm:"uniqueIndex;size:128;not null"`
	ExchangeName string          `gorm:"size:64"`
	Capital      decimal.Decimal `gorm:"type:decimal(30,10);not null"`
	Assets       []Asset         `gorm:"constraint:OnDelete:CASCADE"`
	UpdatedAt    time.Time
}

type Asset struct {
	ID          uint   `gorm:"primaryKey"`
	PortfolioID uint   `gorm:"uniqueIndex:idx_portfolio_symbol;not null"`
	Symbol      string `gorm:"uniqueIndex:idx_portfolio_symbol;size:64;not null"`
	Units       int64  `gorm:"not null"`
}

// Valuation is a point in a portfolio's value history.
type Valuation struct {
	ID          uint            `gorm:"primaryKey"`
	PortfolioID uint            `gorm:"index:idx_valuation_time;not null"`
	ValuedAt    time.Time       `gorm:"index:idx_valuation_time;not null"`
	Value       decimal.Decimal `gorm:"type:decimal(30,10);not null"`
}

func (Valuation) TableName() string { return "historical_portfolio_valuations" }

// Signal is a reconciled signal kept for audit.
type Signal struct {
	ID          uint                `gorm:"primaryKey"`
	JobID       string              `gorm:"index;size:36"`
	Strategy    string              `gorm:"size:128"`
	Symbol      string              `gorm:"index;size:64;not null"`
	Action      string              `gorm:"size:8;not null"`
	TargetValue decimal.NullDecimal `gorm:"type:decimal(30,10)"`
	GeneratedAt time.Time           `gorm:"not null"`
}

// Job is the bookkeeping row of one pass.
type Job struct {
	ID             string `gorm:"primaryKey;size:36"`
	Name           string `gorm:"index;size:128"`
	Script         string `gorm:"size:128"`
	LogPath        string `gorm:"size:512"`
	Version        string `gorm:"size:64"`
	Phase          string `gorm:"size:32"`
	StartedAt      time.Time
	ElapsedSeconds float64
	FinishState    string `gorm:"size:16"`
	Error          string `gorm:"size:2048"`
}

type Tick struct {
	ID         uint            `gorm:"primaryKey"`
	Symbol     string          `gorm:"index:idx_tick_symbol_time;size:64;not null"`
	Price      decimal.Decimal `gorm:"type:decimal(30,10);not null"`
	Volume     int64
	ObservedAt time.Time `gorm:"index:idx_tick_symbol_time;not null"`
}

func models() []any {
	return []any{
		&RiskProfile{},
		&RiskLimit{},
		&Strategy{},
		&Portfolio{},
		&Asset{},
		&Valuation{},
		&Signal{},
		&Job{},
		&Tick{},
	}
}
