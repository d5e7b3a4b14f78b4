package trade

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"algotrading/internal/errors"
	"algotrading/internal/exchange"
	"algotrading/internal/obs"
	"algotrading/internal/risk"
	"algotrading/internal/schema"
	"algotrading/internal/state"
	"algotrading/internal/strategy"
)

// DefaultUnits is the size of every proposed trade.
const DefaultUnits int64 = 1

// Proposal is the outcome of proposing trades for a pass.
type Proposal struct {
	Trades  []schema.Trade  `json:"trades"`
	Skipped []risk.Decision `json:"skipped"`
}

// Proposer turns reconciled signals into gated trades.
type Proposer struct {
	Exchange  exchange.Exchange
	Portfolio *state.Portfolio
	Units     int64
	Logger    *zap.Logger
	Metrics   *obs.Metrics
}

func NewProposer(ex exchange.Exchange, portfolio *state.Portfolio, logger *zap.Logger, metrics *obs.Metrics) *Proposer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proposer{
		Exchange:  ex,
		Portfolio: portfolio,
		Units:     DefaultUnits,
		Logger:    logger,
		Metrics:   metrics,
	}
}

// Propose builds one candidate trade per strategy whose symbol has a signal.
//
// Trades breaching a risk limit are skipped and reported in Proposal.Skipped.
// A trade for a symbol the portfolio does not hold fails the whole call, and so
// does a buy the cash left after the buys already proposed cannot cover.
func (p *Proposer) Propose(ctx context.Context, defs []strategy.Definition, signals []schema.Signal, profiles map[string]schema.RiskProfile) (Proposal, error) {
	gate := risk.NewGate(marketView{portfolio: p.Portfolio, exchange: p.Exchange})
	units := p.Units
	if units <= 0 {
		units = DefaultUnits
	}

	available := p.Portfolio.Cash()
	proposal := Proposal{Trades: make([]schema.Trade, 0, len(defs))}
	for _, def := range defs {
		sig, ok := signalFor(signals, def.Symbol)
		if !ok {
			p.Logger.Debug("no signal for strategy", zap.String("strategy", def.Name), zap.String("symbol", def.Symbol))
			continue
		}
		if !sig.Action.Tradable() {
			p.Logger.Debug("hold signal, no trade", zap.String("strategy", def.Name), zap.String("symbol", def.Symbol))
			continue
		}

		candidate := schema.Trade{
			Strategy:    def.Name,
			Action:      sig.Action,
			Symbol:      sig.Symbol,
			Units:       units,
			TargetValue: sig.Target(),
		}

		decision, err := gate.Evaluate(ctx, def.Name, candidate, profiles[def.Name])
		if err != nil {
			return Proposal{}, errors.Wrapf(err, "risk check %s for %s", candidate, def.Name)
		}
		if !decision.Allowed {
			proposal.Skipped = append(proposal.Skipped, decision)
			p.Metrics.IncRiskSkip(def.Name, string(decision.Reason))
			p.Logger.Warn("trade skipped by risk limit",
				zap.String("strategy", def.Name),
				zap.Stringer("trade", candidate),
				zap.String("reason", string(decision.Reason)),
				zap.Stringer("observed", decision.Observed),
				zap.Stringer("limit", decision.Limit))
			continue
		}

		if !p.Portfolio.Holds(candidate.Symbol) {
			return Proposal{}, &UnknownAssetError{Strategy: def.Name, Symbol: candidate.Symbol}
		}
		if candidate.Action == schema.ActionBuy {
			required := candidate.Notional()
			if required.GreaterThan(available) {
				return Proposal{}, &InsufficientCapitalError{
					Strategy:  def.Name,
					Symbol:    candidate.Symbol,
					Required:  required,
					Available: available,
				}
			}
			available = available.Sub(required)
		}

		proposal.Trades = append(proposal.Trades, candidate)
		p.Metrics.IncProposed()
		p.Logger.Info("trade proposed", zap.String("strategy", def.Name), zap.Stringer("trade", candidate))
	}
	return proposal, nil
}

func signalFor(signals []schema.Signal, symbol string) (schema.Signal, bool) {
	for _, s := range signals {
		if s.Symbol == symbol {
			return s, true
		}
	}
	return schema.Signal{}, false
}

type marketView struct {
	portfolio *state.Portfolio
	exchange  exchange.Exchange
}

func (m marketView) Exposure(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return m.portfolio.Exposure(ctx, m.exchange, symbol)
}

func (m marketView) Liquidity(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return m.exchange.Liquidity(ctx, symbol)
}
