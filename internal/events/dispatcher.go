package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"algotrading/internal/bus"
	"algotrading/internal/schema"
)

const defaultQueueSize = 1024

// Dispatcher decouples execution from delivery: fills are queued without
// blocking and a single goroutine forwards them to the publisher in order.
type Dispatcher struct {
	queue     *bus.Queue[TradeEvent]
	publisher Publisher
	logger    *zap.Logger
	timeout   time.Duration

	jobID     uuid.UUID
	portfolio string

	wg sync.WaitGroup
}

func NewDispatcher(publisher Publisher, jobID uuid.UUID, portfolio string, queueSize int, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{
		queue:     bus.NewQueue[TradeEvent](queueSize),
		publisher: publisher,
		logger:    logger,
		timeout:   5 * time.Second,
		jobID:     jobID,
		portfolio: portfolio,
	}
}

// Start launches the forwarding goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.queue.Run(ctx, func(evt TradeEvent) {
			pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
			defer cancel()
			if err := d.publisher.Publish(pctx, evt); err != nil {
				d.logger.Error("publish trade event", zap.Stringer("event", evt.ID), zap.Error(err))
			}
		})
	}()
}

// TradeExecuted queues a fill. A full queue drops the event with an error log.
func (d *Dispatcher) TradeExecuted(index int, trade schema.ExecutedTrade) {
	evt := TradeEvent{
		ID:        uuid.New(),
		JobID:     d.jobID,
		Portfolio: d.portfolio,
		Index:     index,
		Trade:     trade,
		Amount:    trade.Amount(),
		Timestamp: time.Now().UTC(),
	}
	if err := d.queue.TryPublish(evt); err != nil {
		d.logger.Error("drop trade event", zap.Int("index", index), zap.Stringer("trade", trade), zap.Error(err))
	}
}

// Close stops accepting events and waits for the queue to drain.
// The publisher stays open, it belongs to the caller.
func (d *Dispatcher) Close() error {
	d.queue.Close()
	d.wg.Wait()
	return nil
}
