package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func tick(price, volume float64, ts int64) Tick {
	return Tick{
		Instrument: "BTC/USDT",
		Price:      decimal.NewFromFloat(price),
		Volume:     decimal.NewFromFloat(volume),
		Timestamp:  ts,
	}
}

func TestNewCandleFromTick(t *testing.T) {
	c := NewCandleFromTick(tick(100, 2, 0), 0)

	assert.Equal(t, "BTC/USDT", c.Instrument)
	assert.True(t, c.Open.Equal(decimal.NewFromInt(100)))
	assert.True(t, c.High.Equal(decimal.NewFromInt(100)))
	assert.True(t, c.Low.Equal(decimal.NewFromInt(100)))
	assert.True(t, c.Close.Equal(decimal.NewFromInt(100)))
	assert.True(t, c.Volume.Equal(decimal.NewFromInt(2)))
	assert.True(t, c.Valid())
}

func TestCandleApplyTick(t *testing.T) {
	c := NewCandleFromTick(tick(100, 1, 0), 0)

	c.ApplyTick(tick(105, 2, 1000))
	c.ApplyTick(tick(98, 3, 2000))
	c.ApplyTick(tick(101, 1, 3000))

	assert.True(t, c.Open.Equal(decimal.NewFromInt(100)), "open must not move")
	assert.True(t, c.High.Equal(decimal.NewFromInt(105)))
	assert.True(t, c.Low.Equal(decimal.NewFromInt(98)))
	assert.True(t, c.Close.Equal(decimal.NewFromInt(101)))
	assert.True(t, c.Volume.Equal(decimal.NewFromInt(7)))
	assert.True(t, c.Valid())
}

func TestCandleValid(t *testing.T) {
	tests := []struct {
		name                   string
		open, high, low, close float64
		want                   bool
	}{
		{"flat candle", 100, 100, 100, 100, true},
		{"normal candle", 100, 110, 95, 105, true},
		{"low above open", 100, 110, 101, 105, false},
		{"high below close", 100, 104, 95, 105, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Candle{
				Open:  decimal.NewFromFloat(tt.open),
				High:  decimal.NewFromFloat(tt.high),
				Low:   decimal.NewFromFloat(tt.low),
				Close: decimal.NewFromFloat(tt.close),
			}
			assert.Equal(t, tt.want, c.Valid())
		})
	}
}
