// Package exchange places trades and quotes prices.
package exchange

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"algotrading/internal/errors"
	"algotrading/internal/schema"
	"algotrading/pkg/exception"
)

// Modes accepted by New.
const (
	ModeSimulate = "simulate"
	ModeExecute  = "execute"
)

// Exchange is the venue a pass trades against.
type Exchange interface {
	// Ask sells units of symbol and returns the fill and the proceeds.
	Ask(ctx context.Context, symbol string, units int64, target decimal.Decimal) (schema.ExecutedTrade, decimal.Decimal, error)
	// Bid buys units of symbol and returns the fill and the cost.
	Bid(ctx context.Context, symbol string, units int64, target decimal.Decimal) (schema.ExecutedTrade, decimal.Decimal, error)
	Liquidity(ctx context.Context, symbol string) (decimal.Decimal, error)
	AskPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Status reports whether a venue is accepting orders.
type Status interface {
	IsOpen(ctx context.Context) (bool, error)
}

// Config selects and configures the exchange.
type Config struct {
	Mode string `mapstructure:"mode"`

	TradeFile  string            `mapstructure:"trade_file"`
	Liquidity  string            `mapstructure:"liquidity"`
	AskPrice   string            `mapstructure:"ask_price"`
	Prices     map[string]string `mapstructure:"prices"`
	Commission string            `mapstructure:"commission"`

	APIKey     string `mapstructure:"api_key"`
	SecretKey  string `mapstructure:"secret_key"`
	Testnet    bool   `mapstructure:"testnet"`
	DepthLimit int    `mapstructure:"depth_limit"`

	Chaos ChaosConfig `mapstructure:"chaos"`
}

// New builds the exchange for cfg.Mode, wrapped with fault injection when
// cfg.Chaos is enabled.
func New(cfg Config, logger *zap.Logger) (Exchange, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var ex Exchange
	switch strings.ToLower(cfg.Mode) {
	case ModeSimulate:
		opts, err := simulatorOptions(cfg)
		if err != nil {
			return nil, err
		}
		ex = NewSimulator(logger, opts...)
	case ModeExecute:
		ex = NewBinance(cfg, logger)
	default:
		return nil, errors.Wrapf(exception.ErrUnsupportedMode, "mode %q", cfg.Mode)
	}

	if !cfg.Chaos.Enabled() {
		return ex, nil
	}
	return NewChaos(ex, cfg.Chaos, logger)
}

func simulatorOptions(cfg Config) ([]SimulatorOption, error) {
	var opts []SimulatorOption
	if cfg.TradeFile != "" {
		opts = append(opts, WithTradeFile(cfg.TradeFile))
	}

	parse := func(field, v string) (decimal.Decimal, error) {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, errors.Wrapf(exception.ErrInvalidConfig, "exchange.%s %q", field, v)
		}
		return d, nil
	}

	if cfg.Liquidity != "" {
		v, err := parse("liquidity", cfg.Liquidity)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithLiquidity(v))
	}
	if cfg.AskPrice != "" {
		v, err := parse("ask_price", cfg.AskPrice)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithDefaultPrice(v))
	}
	if cfg.Commission != "" {
		v, err := parse("commission", cfg.Commission)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithCommission(v))
	}
	for symbol, raw := range cfg.Prices {
		v, err := parse("prices."+symbol, raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithPrice(strings.ToUpper(symbol), v))
	}
	return opts, nil
}
