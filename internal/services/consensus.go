package services

import (
	"time"

	"github.com/ensembot/ensembot/internal/models"
	"github.com/shopspring/decimal"
)

// successProfitBar is the leveraged-profit percent a directional prediction
// must reach (long) or fall below (short) to count as a success. Raw
// directional correctness is deliberately not the scoring rule.
const successProfitBar = 5.0

// Consensus aggregates per-expert calls into a panel majority vote. Experts
// that abstained count as neutral, so the three counts always sum to the
// panel size. Ties resolve to neutral.
func Consensus(totalExperts int, predictions []*models.Prediction) models.ConsensusResult {
	result := models.ConsensusResult{
		Signal:       models.DirectionNeutral,
		TotalExperts: totalExperts,
	}
	if totalExperts == 0 {
		return result
	}

	for _, p := range predictions {
		switch p.Signal {
		case models.DirectionLong:
			result.LongCount++
		case models.DirectionShort:
			result.ShortCount++
		}
	}
	result.NeutralCount = totalExperts - result.LongCount - result.ShortCount

	winning := result.NeutralCount
	switch {
	case result.LongCount > result.ShortCount && result.LongCount > result.NeutralCount:
		result.Signal = models.DirectionLong
		winning = result.LongCount
	case result.ShortCount > result.LongCount && result.ShortCount > result.NeutralCount:
		result.Signal = models.DirectionShort
		winning = result.ShortCount
	}
	result.Confidence = float64(winning) / float64(totalExperts) * 100

	return result
}

// Verifier resolves pending predictions against realized prices.
type Verifier struct {
	leverage float64
}

// NewVerifier creates a verifier with the configured leverage multiplier.
func NewVerifier(leverage float64) *Verifier {
	return &Verifier{leverage: leverage}
}

// Verify resolves one prediction against the observed exit price. Success
// requires the leveraged profit to clear the ±5 bar in the predicted
// direction; neutral predictions always resolve successful. Already-resolved
// predictions are returned untouched.
func (v *Verifier) Verify(p *models.Prediction, exitPrice decimal.Decimal) *models.Prediction {
	if p.Resolved() {
		return p
	}

	entry, _ := p.EntryPrice.Float64()
	exit, _ := exitPrice.Float64()
	priceChangePercent := 0.0
	if entry != 0 {
		priceChangePercent = (exit - entry) / entry * 100
	}
	leveragedProfit := priceChangePercent * v.leverage

	success := false
	switch p.Signal {
	case models.DirectionLong:
		success = leveragedProfit >= successProfitBar
	case models.DirectionShort:
		success = leveragedProfit <= -successProfitBar
	case models.DirectionNeutral:
		// An abstention cannot fail.
		success = true
	}

	now := time.Now().UTC()
	p.ExitPrice = &exitPrice
	p.ProfitPercent = &leveragedProfit
	p.CheckedAt = &now
	if success {
		p.Status = models.PredictionSuccess
	} else {
		p.Status = models.PredictionFail
	}
	return p
}
