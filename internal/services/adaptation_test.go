package services

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembot/ensembot/internal/database"
	"github.com/ensembot/ensembot/internal/models"
)

func TestLearningRate(t *testing.T) {
	tests := []struct {
		name          string
		profitPercent float64
		want          float64
	}{
		{"small move halves the base rate", 0.5, 0.025},
		{"negative small move", -0.5, 0.025},
		{"unit move keeps the base rate", 1.0, 0.05},
		{"doubling scales logarithmically", 2.0, 0.1},
		{"large move clips at the ceiling", 16.0, 0.15},
		{"large loss clips the same way", -16.0, 0.15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, learningRate(tt.profitPercent), 1e-9)
		})
	}
}

func learnPrediction(signal models.Direction, profitPercent float64) *models.Prediction {
	return &models.Prediction{
		ID:            "p-1",
		ExpertID:      "test-expert",
		Timeframe:     "15m",
		Signal:        signal,
		Status:        models.PredictionSuccess,
		ProfitPercent: &profitPercent,
		Contributions: map[string]models.IndicatorContribution{
			models.IndicatorRSI:  {Direction: signal, Strength: 60, Weight: 0.5, Contribution: 30},
			models.IndicatorMACD: {Direction: models.DirectionShort, Strength: 40, Weight: 0.5, Contribution: 20},
		},
	}
}

func TestLearnOnSuccess(t *testing.T) {
	engine := NewAdaptationEngine(nil, testLogger())
	expert := testExpert(0.55, map[string]float64{
		models.IndicatorRSI:  0.5,
		models.IndicatorMACD: 0.5,
	})

	// Profit 2.0 -> rate 0.1. RSI agreed with the long call, MACD disagreed.
	engine.Learn(expert, learnPrediction(models.DirectionLong, 2.0), true)

	weights := expert.WeightsFor("15m")
	assert.InDelta(t, 0.55, weights[models.IndicatorRSI], 1e-9)
	assert.InDelta(t, 0.47, weights[models.IndicatorMACD], 1e-9)
	assert.Equal(t, 1, expert.OutcomesFor("15m").Len())
}

func TestLearnOnFailure(t *testing.T) {
	engine := NewAdaptationEngine(nil, testLogger())
	expert := testExpert(0.55, map[string]float64{
		models.IndicatorRSI:  0.5,
		models.IndicatorMACD: 0.5,
	})

	engine.Learn(expert, learnPrediction(models.DirectionLong, 2.0), false)

	weights := expert.WeightsFor("15m")
	assert.InDelta(t, 0.45, weights[models.IndicatorRSI], 1e-9)
	assert.InDelta(t, 0.53, weights[models.IndicatorMACD], 1e-9)
}

func TestLearnSkipsWithoutRealizedProfit(t *testing.T) {
	engine := NewAdaptationEngine(nil, testLogger())
	expert := testExpert(0.55, map[string]float64{models.IndicatorRSI: 0.5})

	p := learnPrediction(models.DirectionLong, 0)
	p.ProfitPercent = nil
	engine.Learn(expert, p, true)

	assert.Equal(t, 0.5, expert.WeightsFor("15m")[models.IndicatorRSI])
	assert.Equal(t, 0, expert.OutcomesFor("15m").Len())
}

func TestLearnKeepsWeightsInBounds(t *testing.T) {
	engine := NewAdaptationEngine(nil, testLogger())
	expert := testExpert(0.55, map[string]float64{
		models.IndicatorRSI:  0.95,
		models.IndicatorMACD: 0.1,
	})

	for i := 0; i < 50; i++ {
		engine.Learn(expert, learnPrediction(models.DirectionLong, 20.0), true)
	}

	weights := expert.WeightsFor("15m")
	assert.Equal(t, models.MaxIndicatorWeight, weights[models.IndicatorRSI])
	assert.Equal(t, models.MinIndicatorWeight, weights[models.IndicatorMACD])
}

func TestThresholdRaisedOnPoorWindow(t *testing.T) {
	engine := NewAdaptationEngine(nil, testLogger())
	expert := testExpert(0.55, map[string]float64{models.IndicatorRSI: 0.5})

	// Four failures leave the window short of the minimum: no movement.
	for i := 0; i < 4; i++ {
		engine.Learn(expert, learnPrediction(models.DirectionLong, -2.0), false)
	}
	assert.Equal(t, 0.55, expert.ThresholdFor("15m"))

	// The fifth failure fills the window; success rate 0 raises the gate.
	engine.Learn(expert, learnPrediction(models.DirectionLong, -2.0), false)
	assert.InDelta(t, 0.57, expert.ThresholdFor("15m"), 1e-9)
}

func TestThresholdLoweredOnStrongWindow(t *testing.T) {
	engine := NewAdaptationEngine(nil, testLogger())
	expert := testExpert(0.55, map[string]float64{models.IndicatorRSI: 0.5})

	for i := 0; i < 5; i++ {
		engine.Learn(expert, learnPrediction(models.DirectionLong, 8.0), true)
	}
	assert.InDelta(t, 0.54, expert.ThresholdFor("15m"), 1e-9)
}

func TestThresholdStaysInBounds(t *testing.T) {
	engine := NewAdaptationEngine(nil, testLogger())
	expert := testExpert(0.74, map[string]float64{models.IndicatorRSI: 0.5})

	for i := 0; i < 20; i++ {
		engine.Learn(expert, learnPrediction(models.DirectionLong, -2.0), false)
	}
	assert.Equal(t, models.MaxConfidenceThreshold, expert.ThresholdFor("15m"))

	low := testExpert(0.36, map[string]float64{models.IndicatorRSI: 0.5})
	for i := 0; i < 20; i++ {
		engine.Learn(low, learnPrediction(models.DirectionLong, 8.0), true)
	}
	assert.Equal(t, models.MinConfidenceThreshold, low.ThresholdFor("15m"))
}

func TestOutcomeWindowBoundedThroughLearning(t *testing.T) {
	engine := NewAdaptationEngine(nil, testLogger())
	expert := testExpert(0.55, map[string]float64{models.IndicatorRSI: 0.5})

	for i := 0; i < 25; i++ {
		engine.Learn(expert, learnPrediction(models.DirectionLong, 2.0), i%2 == 0)
	}
	assert.Equal(t, models.OutcomeWindowSize, expert.OutcomesFor("15m").Len())
}

func resolvedRow(id string, status models.PredictionStatus, contributions map[string]models.IndicatorContribution) []any {
	raw, _ := json.Marshal(contributions)
	return []any{
		id, "test-expert", "BTC/USDT", "15m", "long", 60.0,
		decimal.NewFromInt(50_000), string(status), raw, time.Now().UTC(),
	}
}

func TestEstimateImportance(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rows := pgxmock.NewRows([]string{
		"id", "expert_id", "instrument", "timeframe", "signal", "confidence",
		"entry_price", "status", "contributions", "created_at",
	}).
		AddRow(resolvedRow("p-1", models.PredictionSuccess, map[string]models.IndicatorContribution{
			models.IndicatorRSI:  {Direction: models.DirectionLong, Contribution: 80},
			models.IndicatorMACD: {Direction: models.DirectionLong, Contribution: 10},
		})...).
		AddRow(resolvedRow("p-2", models.PredictionSuccess, map[string]models.IndicatorContribution{
			models.IndicatorRSI:  {Direction: models.DirectionLong, Contribution: 70},
			models.IndicatorMACD: {Direction: models.DirectionLong, Contribution: 5},
		})...).
		AddRow(resolvedRow("p-3", models.PredictionFail, map[string]models.IndicatorContribution{
			models.IndicatorRSI:  {Direction: models.DirectionLong, Contribution: 20},
			models.IndicatorMACD: {Direction: models.DirectionShort, Contribution: 90},
		})...)

	mock.ExpectQuery(regexp.QuoteMeta("FROM predictions")).
		WithArgs("test-expert", "15m", importanceLookback).
		WillReturnRows(rows)

	engine := NewAdaptationEngine(database.NewPredictionRepository(mock), testLogger())
	factors := engine.EstimateImportance(context.Background(), "test-expert", "15m")

	// RSI's biggest contribution came on a success, MACD's on a failure.
	assert.Equal(t, importanceBoostFactor, factors[models.IndicatorRSI])
	assert.Equal(t, importanceDiscountFactor, factors[models.IndicatorMACD])
	assert.NotContains(t, factors, models.IndicatorVolume)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEstimateImportanceSkipsOnStoreError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM predictions")).
		WithArgs("test-expert", "15m", importanceLookback).
		WillReturnError(assert.AnError)

	engine := NewAdaptationEngine(database.NewPredictionRepository(mock), testLogger())
	assert.Nil(t, engine.EstimateImportance(context.Background(), "test-expert", "15m"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
