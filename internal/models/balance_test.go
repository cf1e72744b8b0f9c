package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestRecordTradeStreaks(t *testing.T) {
	b := &TraderBalance{}

	b.RecordTrade(10, decimal.NewFromInt(100))
	b.RecordTrade(5, decimal.NewFromInt(50))
	assert.Equal(t, 2, b.CurrentStreak)
	assert.Equal(t, 2, b.BestStreak)

	b.RecordTrade(-8, decimal.NewFromInt(-80))
	assert.Equal(t, -1, b.CurrentStreak)
	b.RecordTrade(-4, decimal.NewFromInt(-40))
	assert.Equal(t, -2, b.CurrentStreak)
	assert.Equal(t, -2, b.WorstStreak)
	assert.Equal(t, 2, b.BestStreak, "best streak survives a losing run")

	b.RecordTrade(3, decimal.NewFromInt(30))
	assert.Equal(t, 1, b.CurrentStreak)
}

func TestRecordTradeTotals(t *testing.T) {
	b := &TraderBalance{}

	b.RecordTrade(12, decimal.NewFromInt(120))
	b.RecordTrade(-7, decimal.NewFromInt(-70))
	b.RecordTrade(20, decimal.NewFromInt(200))
	b.RecordTrade(-25, decimal.NewFromInt(-250))

	assert.Equal(t, 4, b.TotalTrades)
	assert.Equal(t, 2, b.WinningTrades)
	assert.Equal(t, 2, b.LosingTrades)
	assert.Equal(t, 20.0, b.BestTradePercent)
	assert.Equal(t, -25.0, b.WorstTradePercent)
	assert.Equal(t, 50.0, b.WinRate)
	assert.True(t, b.CumulativeProfit.Equal(decimal.NewFromInt(0)))
}

func TestRecordTradeZeroProfitCountsAsWin(t *testing.T) {
	b := &TraderBalance{}
	b.RecordTrade(0, decimal.Zero)

	assert.Equal(t, 1, b.WinningTrades)
	assert.Equal(t, 0, b.LosingTrades)
	assert.Equal(t, 100.0, b.WinRate)
}
