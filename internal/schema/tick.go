package schema

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tick is one observed market price.
type Tick struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	Volume     int64           `json:"volume"`
	ObservedAt time.Time       `json:"observedAt"`
}
