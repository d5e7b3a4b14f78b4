package risk

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"algotrading/internal/errors"
	"algotrading/internal/schema"
	"algotrading/internal/strategy"
	"algotrading/pkg/exception"
)

var (
	one = decimal.NewFromInt(1)
	two = decimal.NewFromInt(2)
)

// DefaultAppetite leaves every limit unchanged.
var DefaultAppetite = one

// ProfileSource loads the base limits of a stored risk profile.
type ProfileSource interface {
	RiskLimits(ctx context.Context, profileID uint) (map[string]decimal.Decimal, error)
}

// ScaleLimit scales a base limit by appetite according to its name.
// "max" limits grow with appetite, "min" limits shrink by the same amount.
// The result is not clamped: an appetite above 2 turns "min" limits negative.
func ScaleLimit(name string, base, appetite decimal.Decimal) decimal.Decimal {
	scaled := base
	if strings.Contains(name, "max") {
		scaled = scaled.Mul(appetite)
	}
	if strings.Contains(name, "min") {
		scaled = scaled.Mul(two.Sub(appetite))
	}
	return scaled
}

// Builder produces the scaled risk profile of every strategy in a pass.
type Builder struct {
	Source   ProfileSource
	Appetite decimal.Decimal
	Logger   *zap.Logger
}

func NewBuilder(source ProfileSource, appetite decimal.Decimal, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{Source: source, Appetite: appetite, Logger: logger}
}

// Build returns strategy name -> scaled profile. Profiles are shared between
// strategies with the same profile id and must not be mutated.
func (b *Builder) Build(ctx context.Context, defs []strategy.Definition) (map[string]schema.RiskProfile, error) {
	if b.Source == nil {
		return nil, errors.Wrap(exception.ErrNilInstance, "risk profile source")
	}
	if b.Appetite.GreaterThan(two) {
		b.Logger.Warn("risk appetite above 2 inverts min limits",
			zap.Stringer("appetite", b.Appetite))
	}

	cache := make(map[uint]schema.RiskProfile, len(defs))
	profiles := make(map[string]schema.RiskProfile, len(defs))
	for _, def := range defs {
		profile, ok := cache[def.RiskProfileID]
		if !ok {
			base, err := b.Source.RiskLimits(ctx, def.RiskProfileID)
			if err != nil {
				return nil, errors.Wrapf(err, "load risk profile %d for %s", def.RiskProfileID, def.Name)
			}
			profile = make(schema.RiskProfile, len(base))
			for name, value := range base {
				profile[name] = ScaleLimit(name, value, b.Appetite)
			}
			cache[def.RiskProfileID] = profile
		}
		profiles[def.Name] = profile
		b.Logger.Debug("risk profile", zap.String("strategy", def.Name), zap.Any("limits", profile))
	}
	return profiles, nil
}
