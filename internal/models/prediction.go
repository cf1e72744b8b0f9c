package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PredictionStatus tracks a prediction through verification.
type PredictionStatus string

const (
	PredictionPending PredictionStatus = "pending"
	PredictionSuccess PredictionStatus = "success"
	PredictionFail    PredictionStatus = "fail"
)

// IndicatorContribution records how one indicator influenced a prediction,
// kept for attribution by the adaptation engine.
type IndicatorContribution struct {
	Direction    Direction `json:"direction"`
	Strength     float64   `json:"strength"`
	Weight       float64   `json:"weight"`
	Contribution float64   `json:"contribution"`
}

// Prediction is a gated directional call emitted by one expert. Created
// pending, resolved exactly once by verification, then read-only.
type Prediction struct {
	ID            string           `json:"id" db:"id"`
	ExpertID      string           `json:"expert_id" db:"expert_id"`
	Instrument    string           `json:"instrument" db:"instrument"`
	Timeframe     string           `json:"timeframe" db:"timeframe"`
	Signal        Direction        `json:"signal" db:"signal"`
	Confidence    float64          `json:"confidence" db:"confidence"` // 0-100
	EntryPrice    decimal.Decimal  `json:"entry_price" db:"entry_price"`
	Status        PredictionStatus `json:"status" db:"status"`
	ExitPrice     *decimal.Decimal `json:"exit_price,omitempty" db:"exit_price"`
	ProfitPercent *float64         `json:"profit_percent,omitempty" db:"profit_percent"`

	// Contributions maps indicator name -> its weighted contribution at
	// prediction time.
	Contributions map[string]IndicatorContribution `json:"contributions" db:"contributions"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	CheckedAt *time.Time `json:"checked_at,omitempty" db:"checked_at"`
}

// Resolved reports whether verification has already run for this prediction.
func (p *Prediction) Resolved() bool {
	return p.Status != PredictionPending
}

// ConsensusResult is the panel-level majority vote for one instrument and
// timeframe.
type ConsensusResult struct {
	Signal       Direction `json:"signal"`
	Confidence   float64   `json:"confidence"` // winning count / total * 100
	LongCount    int       `json:"long_count"`
	ShortCount   int       `json:"short_count"`
	NeutralCount int       `json:"neutral_count"`
	TotalExperts int       `json:"total_experts"`
}
