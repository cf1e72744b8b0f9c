package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tick represents a single trade print pushed by the live feed. Ticks are
// consumed immediately by the candle aggregator and never persisted.
type Tick struct {
	Instrument string          `json:"instrument"`
	Price      decimal.Decimal `json:"price"`
	Volume     decimal.Decimal `json:"volume"`
	Timestamp  int64           `json:"timestamp"` // unix milliseconds
}

// Time returns the tick timestamp as a time.Time.
func (t Tick) Time() time.Time {
	return time.UnixMilli(t.Timestamp)
}

// Candle is a fixed-width OHLCV aggregate for one instrument.
type Candle struct {
	Instrument    string          `json:"instrument" db:"instrument"`
	IntervalStart int64           `json:"interval_start" db:"interval_start"` // unix seconds, multiple of the candle width
	Open          decimal.Decimal `json:"open" db:"open"`
	High          decimal.Decimal `json:"high" db:"high"`
	Low           decimal.Decimal `json:"low" db:"low"`
	Close         decimal.Decimal `json:"close" db:"close"`
	Volume        decimal.Decimal `json:"volume" db:"volume"`
}

// Valid reports whether the candle satisfies low <= {open,close} <= high.
func (c Candle) Valid() bool {
	if c.Low.GreaterThan(c.Open) || c.Low.GreaterThan(c.Close) {
		return false
	}
	if c.High.LessThan(c.Open) || c.High.LessThan(c.Close) {
		return false
	}
	return true
}

// ApplyTick folds a tick into the candle, widening high/low and accumulating
// volume. The candle's open is left untouched.
func (c *Candle) ApplyTick(t Tick) {
	if t.Price.GreaterThan(c.High) {
		c.High = t.Price
	}
	if t.Price.LessThan(c.Low) {
		c.Low = t.Price
	}
	c.Close = t.Price
	c.Volume = c.Volume.Add(t.Volume)
}

// NewCandleFromTick starts a fresh candle at the given interval bucket.
func NewCandleFromTick(t Tick, intervalStart int64) Candle {
	return Candle{
		Instrument:    t.Instrument,
		IntervalStart: intervalStart,
		Open:          t.Price,
		High:          t.Price,
		Low:           t.Price,
		Close:         t.Price,
		Volume:        t.Volume,
	}
}
