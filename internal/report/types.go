package report

import (
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"algotrading/internal/store"
	"algotrading/internal/strategy"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type ExchangeStatus struct {
	Open bool `json:"open"`
}

type StrategyInfo struct {
	ID            uint   `json:"id"`
	Name          string `json:"name"`
	Method        string `json:"method"`
	Args          string `json:"args"`
	Symbol        string `json:"symbol"`
	RiskProfileID uint   `json:"risk_profile_id"`
}

type ValuationPoint struct {
	ValuedAt string  `json:"valued_at"`
	Value    float64 `json:"value"`
}

type PortfolioInfo struct {
	ID                   uint             `json:"id"`
	Name                 string           `json:"name"`
	Exchange             string           `json:"exchange"`
	Cash                 string           `json:"cash"`
	Value                string           `json:"value"`
	HistoricalValuations []ValuationPoint `json:"historical_valuations"`
	PnL                  string           `json:"pnl"`
}

type AssetInfo struct {
	Symbol   string `json:"symbol"`
	Units    int64  `json:"units"`
	Exposure string `json:"exposure"`
}

type JobInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Script      string `json:"script"`
	LogPath     string `json:"log_path"`
	StartTime   string `json:"start_time"`
	ElapsedTime string `json:"elapsed_time"`
	FinishState string `json:"finish_state"`
	Version     string `json:"version"`
	Phase       string `json:"phase_name"`
	Error       string `json:"error,omitempty"`
}

func toStrategyInfo(d strategy.Definition) StrategyInfo {
	return StrategyInfo{
		ID:            d.ID,
		Name:          d.Name,
		Method:        d.Method,
		Args:          strings.Join(d.Args, ","),
		Symbol:        d.Symbol,
		RiskProfileID: d.RiskProfileID,
	}
}

// FormatAmount renders two decimals with thousands separators, e.g. 1,234.50.
func FormatAmount(v decimal.Decimal) string {
	return humanize.FormatFloat("#,###.##", v.Round(2).InexactFloat64())
}

// PnL is the last minus the first valuation after since, or "-" when there are none.
// vals must be ordered by time.
func PnL(vals []store.Valuation, since time.Time) string {
	var first, last *store.Valuation
	for i := range vals {
		if !vals[i].ValuedAt.After(since) {
			continue
		}
		if first == nil {
			first = &vals[i]
		}
		last = &vals[i]
	}
	if first == nil {
		return "-"
	}
	return FormatAmount(last.Value.Sub(first.Value))
}
