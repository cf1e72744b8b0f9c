package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus tracks a simulated position through its lifecycle.
type PositionStatus string

const (
	PositionOpen       PositionStatus = "open"
	PositionClosedWin  PositionStatus = "closed_win"
	PositionClosedLoss PositionStatus = "closed_loss"
)

// TradingPosition is one simulated leveraged position. At most one open
// position may exist per (expert, instrument).
type TradingPosition struct {
	ID              string          `json:"id" db:"id"`
	ExpertID        string          `json:"expert_id" db:"expert_id"`
	Instrument      string          `json:"instrument" db:"instrument"`
	Direction       Direction       `json:"direction" db:"direction"`
	EntryTime       time.Time       `json:"entry_time" db:"entry_time"`
	EntryPrice      decimal.Decimal `json:"entry_price" db:"entry_price"`
	EntryConfidence float64         `json:"entry_confidence" db:"entry_confidence"`

	// HighestProfitSeen is the best leveraged profit percent observed while
	// the position was open, used by trailing-stop exits.
	HighestProfitSeen float64 `json:"highest_profit_seen" db:"highest_profit_seen"`

	Status                 PositionStatus   `json:"status" db:"status"`
	ExitTime               *time.Time       `json:"exit_time,omitempty" db:"exit_time"`
	ExitPrice              *decimal.Decimal `json:"exit_price,omitempty" db:"exit_price"`
	ExitReason             string           `json:"exit_reason,omitempty" db:"exit_reason"`
	HoldMinutes            *float64         `json:"hold_minutes,omitempty" db:"hold_minutes"`
	LeveragedProfitPercent *float64         `json:"leveraged_profit_percent,omitempty" db:"leveraged_profit_percent"`
	ProfitAmount           *decimal.Decimal `json:"profit_amount,omitempty" db:"profit_amount"`

	BalanceBefore decimal.Decimal  `json:"balance_before" db:"balance_before"`
	BalanceAfter  *decimal.Decimal `json:"balance_after,omitempty" db:"balance_after"`
}

// HeldFor returns how long the position has been open as of now.
func (p *TradingPosition) HeldFor(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}
