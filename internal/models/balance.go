package models

import (
	"github.com/shopspring/decimal"
)

// AccountStatus reflects whether an expert's simulated account may trade.
type AccountStatus string

const (
	AccountActive  AccountStatus = "active"
	AccountPaused  AccountStatus = "paused"
	AccountStopped AccountStatus = "stopped"
)

// TraderBalance is the simulated account row for one (expert, instrument)
// pair, mutated transactionally whenever a position closes.
type TraderBalance struct {
	ExpertID   string `json:"expert_id" db:"expert_id"`
	Instrument string `json:"instrument" db:"instrument"`

	CurrentBalance     decimal.Decimal `json:"current_balance" db:"current_balance"`
	PeakBalance        decimal.Decimal `json:"peak_balance" db:"peak_balance"`
	DailyProfitPercent float64         `json:"daily_profit_percent" db:"daily_profit_percent"`
	DailyLossLimitHit  bool            `json:"daily_loss_limit_hit" db:"daily_loss_limit_hit"`
	Status             AccountStatus   `json:"status" db:"status"`

	TotalTrades   int `json:"total_trades" db:"total_trades"`
	WinningTrades int `json:"winning_trades" db:"winning_trades"`
	LosingTrades  int `json:"losing_trades" db:"losing_trades"`

	// CurrentStreak is positive while on a winning run, negative while on a
	// losing run.
	CurrentStreak int `json:"current_streak" db:"current_streak"`
	BestStreak    int `json:"best_streak" db:"best_streak"`
	WorstStreak   int `json:"worst_streak" db:"worst_streak"`

	BestTradePercent  float64         `json:"best_trade_percent" db:"best_trade_percent"`
	WorstTradePercent float64         `json:"worst_trade_percent" db:"worst_trade_percent"`
	CumulativeProfit  decimal.Decimal `json:"cumulative_profit" db:"cumulative_profit"`
	WinRate           float64         `json:"win_rate" db:"win_rate"`
}

// RecordTrade folds one closed trade into the running totals: counters,
// streaks, best/worst single-trade percent, cumulative profit, and win rate.
func (b *TraderBalance) RecordTrade(leveragedProfitPercent float64, profitAmount decimal.Decimal) {
	b.TotalTrades++
	if leveragedProfitPercent >= 0 {
		b.WinningTrades++
		if b.CurrentStreak > 0 {
			b.CurrentStreak++
		} else {
			b.CurrentStreak = 1
		}
		if b.CurrentStreak > b.BestStreak {
			b.BestStreak = b.CurrentStreak
		}
	} else {
		b.LosingTrades++
		if b.CurrentStreak < 0 {
			b.CurrentStreak--
		} else {
			b.CurrentStreak = -1
		}
		if b.CurrentStreak < b.WorstStreak {
			b.WorstStreak = b.CurrentStreak
		}
	}
	if leveragedProfitPercent > b.BestTradePercent {
		b.BestTradePercent = leveragedProfitPercent
	}
	if leveragedProfitPercent < b.WorstTradePercent {
		b.WorstTradePercent = leveragedProfitPercent
	}
	b.CumulativeProfit = b.CumulativeProfit.Add(profitAmount)
	b.WinRate = float64(b.WinningTrades) / float64(b.TotalTrades) * 100
}
