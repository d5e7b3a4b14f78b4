package strategy

import (
	"time"

	"go.uber.org/zap"

	"algotrading/internal/schema"
)

// DataSource is the read only market data a strategy may consult.
// Implementations must be safe for concurrent reads.
type DataSource interface {
	Latest(symbol string, before time.Time) (schema.Tick, error)
	Ticks(symbol string, after, before time.Time) ([]schema.Tick, error)
}

// Context is shared by every evaluation of a pass and never written to.
type Context struct {
	Now    time.Time
	Data   DataSource
	Logger *zap.Logger
}

func NewContext(now time.Time, data DataSource, logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{Now: now, Data: data, Logger: logger}
}

// Signal returns a fresh scratch signal stamped with the run time.
func (c *Context) Signal() *schema.Signal {
	return &schema.Signal{Timestamp: c.Now}
}
