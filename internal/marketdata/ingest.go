package marketdata

import (
	"context"
	"time"

	"go.uber.org/zap"

	"algotrading/internal/errors"
	"algotrading/internal/schema"
)

// KlineSource fetches recent candles as ticks. *exchange.Binance implements it.
type KlineSource interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]schema.Tick, error)
}

// TickSink stores ticks.
type TickSink interface {
	LatestTickTime(ctx context.Context, symbol string) (time.Time, error)
	SaveTicks(ctx context.Context, ticks []schema.Tick) error
}

// Ingester copies closed candles from an exchange into the tick table.
type Ingester struct {
	source KlineSource
	sink   TickSink
	logger *zap.Logger
	now    func() time.Time
}

func NewIngester(source KlineSource, sink TickSink, logger *zap.Logger) *Ingester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{source: source, sink: sink, logger: logger, now: time.Now}
}

// Ingest stores the ticks of every symbol newer than the last stored one and
// not in the future. It returns the number of ticks stored.
func (i *Ingester) Ingest(ctx context.Context, symbols []string, interval string, limit int) (int, error) {
	now := i.now()
	stored := 0
	for _, symbol := range symbols {
		latest, err := i.sink.LatestTickTime(ctx, symbol)
		if err != nil {
			return stored, err
		}
		ticks, err := i.source.Klines(ctx, symbol, interval, limit)
		if err != nil {
			return stored, err
		}

		fresh := ticks[:0]
		for _, t := range ticks {
			if t.ObservedAt.After(latest) && !t.ObservedAt.After(now) {
				fresh = append(fresh, t)
			}
		}
		if err := i.sink.SaveTicks(ctx, fresh); err != nil {
			return stored, errors.Wrapf(err, "store ticks %s", symbol)
		}
		stored += len(fresh)
		i.logger.Info("ticks ingested", zap.String("symbol", symbol), zap.Int("fetched", len(ticks)), zap.Int("stored", len(fresh)))
	}
	return stored, nil
}
