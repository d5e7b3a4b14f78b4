package exchange

import (
	"context"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"algotrading/internal/errors"
	"algotrading/internal/schema"
	"algotrading/pkg/exception"
)

const defaultDepthLimit = 20

// Binance trades spot market orders on Binance.
type Binance struct {
	client     *binance.Client
	depthLimit int
	logger     *zap.Logger
}

func NewBinance(cfg Config, logger *zap.Logger) *Binance {
	if logger == nil {
		logger = zap.NewNop()
	}
	binance.UseTestnet = cfg.Testnet
	limit := cfg.DepthLimit
	if limit <= 0 {
		limit = defaultDepthLimit
	}
	return &Binance{
		client:     binance.NewClient(cfg.APIKey, cfg.SecretKey),
		depthLimit: limit,
		logger:     logger,
	}
}

func (b *Binance) Ask(ctx context.Context, symbol string, units int64, target decimal.Decimal) (schema.ExecutedTrade, decimal.Decimal, error) {
	return b.market(ctx, binance.SideTypeSell, schema.ActionSell, symbol, units, target)
}

func (b *Binance) Bid(ctx context.Context, symbol string, units int64, target decimal.Decimal) (schema.ExecutedTrade, decimal.Decimal, error) {
	return b.market(ctx, binance.SideTypeBuy, schema.ActionBuy, symbol, units, target)
}

// Liquidity is the quote notional resting on the ask side within the configured depth.
func (b *Binance) Liquidity(ctx context.Context, symbol string) (decimal.Decimal, error) {
	depth, err := b.client.NewDepthService().Symbol(symbol).Limit(b.depthLimit).Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "depth %s", symbol)
	}
	return askNotional(depth.Asks)
}

func (b *Binance) AskPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	tickers, err := b.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "book ticker %s", symbol)
	}
	for _, t := range tickers {
		if t.Symbol != symbol {
			continue
		}
		price, err := decimal.NewFromString(t.AskPrice)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "parse ask price %q", t.AskPrice)
		}
		return price, nil
	}
	return decimal.Zero, errors.Wrapf(exception.ErrUnknownSymbol, "book ticker %s", symbol)
}

// IsOpen pings the venue. Spot markets trade around the clock, so a reachable
// venue is open.
func (b *Binance) IsOpen(ctx context.Context) (bool, error) {
	if err := b.client.NewPingService().Do(ctx); err != nil {
		return false, errors.Wrap(err, "ping binance")
	}
	return true, nil
}

// Klines returns one tick per kline of interval, oldest first. The tick price is
// the close and the tick time the kline close time, so the still open kline
// carries a time in the future.
func (b *Binance) Klines(ctx context.Context, symbol, interval string, limit int) ([]schema.Tick, error) {
	klines, err := b.client.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "klines %s %s", symbol, interval)
	}
	return ticksFromKlines(symbol, klines)
}

func (b *Binance) market(ctx context.Context, side binance.SideType, action schema.Action, symbol string, units int64, target decimal.Decimal) (schema.ExecutedTrade, decimal.Decimal, error) {
	if units <= 0 {
		return schema.ExecutedTrade{}, decimal.Zero, errors.Wrapf(exception.ErrInvalidTrade, "%s %d %s", side, units, symbol)
	}

	resp, err := b.client.NewCreateOrderService().
		Symbol(symbol).
		Side(side).
		Type(binance.OrderTypeMarket).
		Quantity(strconv.FormatInt(units, 10)).
		Do(ctx)
	if err != nil {
		return schema.ExecutedTrade{}, decimal.Zero, errors.Wrapf(err, "%s %d %s", side, units, symbol)
	}

	executed, amount, err := fillFromOrder(action, symbol, resp.ExecutedQuantity, resp.CummulativeQuoteQuantity, resp.TransactTime)
	if err != nil {
		return schema.ExecutedTrade{}, decimal.Zero, err
	}
	executed.Requested = schema.Trade{Action: action, Symbol: symbol, Units: units, TargetValue: target}

	b.logger.Info("binance order filled",
		zap.String("side", string(side)),
		zap.String("symbol", symbol),
		zap.Int64("orderID", resp.OrderID),
		zap.Int64("units", executed.Units),
		zap.Stringer("price", executed.Price))
	return executed, amount, nil
}

// fillFromOrder converts an order response into a fill. The average price is
// quote quantity over executed quantity.
func fillFromOrder(action schema.Action, symbol, executedQty, quoteQty string, transactMillis int64) (schema.ExecutedTrade, decimal.Decimal, error) {
	qty, err := decimal.NewFromString(executedQty)
	if err != nil {
		return schema.ExecutedTrade{}, decimal.Zero, errors.Wrapf(err, "parse executed quantity %q", executedQty)
	}
	quote, err := decimal.NewFromString(quoteQty)
	if err != nil {
		return schema.ExecutedTrade{}, decimal.Zero, errors.Wrapf(err, "parse quote quantity %q", quoteQty)
	}
	if !qty.IsPositive() {
		return schema.ExecutedTrade{}, decimal.Zero, errors.Wrapf(exception.ErrExchangeExecution, "%s %s not filled", action, symbol)
	}
	// Positions are whole units; the order already went through, so the
	// portfolio must be reconciled with the venue by hand.
	if !qty.Equal(qty.Truncate(0)) {
		return schema.ExecutedTrade{}, decimal.Zero, errors.Wrapf(exception.ErrExchangeExecution,
			"%s %s filled %s units at the venue, fractional fills cannot be recorded", action, symbol, qty)
	}

	return schema.ExecutedTrade{
		Action:     action,
		Symbol:     symbol,
		Units:      qty.IntPart(),
		Price:      quote.Div(qty),
		ExecutedAt: time.UnixMilli(transactMillis).UTC(),
	}, quote, nil
}

func askNotional(asks []binance.Ask) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, level := range asks {
		price, err := decimal.NewFromString(level.Price)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "parse ask price %q", level.Price)
		}
		qty, err := decimal.NewFromString(level.Quantity)
		if err != nil {
			return decimal.Zero, errors.Wrapf(err, "parse ask quantity %q", level.Quantity)
		}
		total = total.Add(price.Mul(qty))
	}
	return total, nil
}

func ticksFromKlines(symbol string, klines []*binance.Kline) ([]schema.Tick, error) {
	ticks := make([]schema.Tick, 0, len(klines))
	for _, k := range klines {
		price, err := decimal.NewFromString(k.Close)
		if err != nil {
			return nil, errors.Wrapf(err, "parse close %q", k.Close)
		}
		volume, err := decimal.NewFromString(k.Volume)
		if err != nil {
			return nil, errors.Wrapf(err, "parse volume %q", k.Volume)
		}
		ticks = append(ticks, schema.Tick{
			Symbol:     symbol,
			Price:      price,
			Volume:     volume.IntPart(),
			ObservedAt: time.UnixMilli(k.CloseTime).UTC(),
		})
	}
	return ticks, nil
}
