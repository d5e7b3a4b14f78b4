// Package events forwards executed trades to downstream consumers.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"algotrading/internal/schema"
)

// TopicTrades is the default topic for executed trades.
const TopicTrades = "algotrading.trades.executed"

// TradeEvent describes one applied fill.
type TradeEvent struct {
	ID        uuid.UUID            `json:"id"`
	JobID     uuid.UUID            `json:"jobId"`
	Portfolio string               `json:"portfolio"`
	Index     int                  `json:"index"`
	Trade     schema.ExecutedTrade `json:"trade"`
	Amount    decimal.Decimal      `json:"amount"`
	Timestamp time.Time            `json:"timestamp"`
}

// Publisher delivers trade events.
type Publisher interface {
	Publish(ctx context.Context, events ...TradeEvent) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...TradeEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
