package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembot/ensembot/internal/models"
)

func testExpert(threshold float64, weights map[string]float64) *models.ExpertProfile {
	return &models.ExpertProfile{
		ID:            "test-expert",
		StrategyLabel: models.StrategyOscillator,
		WeightsByTimeframe: map[string]map[string]float64{
			"15m": weights,
		},
		ConfidenceThresholdByTimeframe: map[string]float64{
			"15m": threshold,
		},
	}
}

func TestPredictEmitsDominantDirection(t *testing.T) {
	ensemble := NewExpertEnsemble(testLogger())
	expert := testExpert(0.50, map[string]float64{
		models.IndicatorRSI:  1.0,
		models.IndicatorMACD: 1.0,
	})
	signals := []models.SignalReading{
		{Indicator: models.IndicatorRSI, Direction: models.DirectionLong, Strength: 60},
		{Indicator: models.IndicatorMACD, Direction: models.DirectionShort, Strength: 40},
	}

	p := ensemble.Predict(expert, "15m", "BTC/USDT", signals, decimal.NewFromInt(50_000), nil)

	require.NotNil(t, p)
	assert.Equal(t, models.DirectionLong, p.Signal)
	assert.InDelta(t, 60.0, p.Confidence, 1e-9)
	assert.Equal(t, models.PredictionPending, p.Status)
	assert.Equal(t, "test-expert", p.ExpertID)
	assert.True(t, p.EntryPrice.Equal(decimal.NewFromInt(50_000)))
	assert.Len(t, p.Contributions, 2)
	assert.InDelta(t, 60.0, p.Contributions[models.IndicatorRSI].Contribution, 1e-9)
}

func TestPredictAbstainsBelowThreshold(t *testing.T) {
	ensemble := NewExpertEnsemble(testLogger())
	expert := testExpert(0.65, map[string]float64{
		models.IndicatorRSI:  1.0,
		models.IndicatorMACD: 1.0,
	})
	signals := []models.SignalReading{
		{Indicator: models.IndicatorRSI, Direction: models.DirectionLong, Strength: 60},
		{Indicator: models.IndicatorMACD, Direction: models.DirectionShort, Strength: 40},
	}

	// Confidence 60 as above, but the gate sits at 65.
	p := ensemble.Predict(expert, "15m", "BTC/USDT", signals, decimal.NewFromInt(50_000), nil)
	assert.Nil(t, p)
}

func TestPredictAbstainsWithoutDominance(t *testing.T) {
	ensemble := NewExpertEnsemble(testLogger())
	expert := testExpert(0.35, map[string]float64{
		models.IndicatorRSI:  1.0,
		models.IndicatorMACD: 1.0,
	})
	// 52 vs 48: neither side beats the other by the 1.15 margin.
	signals := []models.SignalReading{
		{Indicator: models.IndicatorRSI, Direction: models.DirectionLong, Strength: 52},
		{Indicator: models.IndicatorMACD, Direction: models.DirectionShort, Strength: 48},
	}

	assert.Nil(t, ensemble.Predict(expert, "15m", "BTC/USDT", signals, decimal.NewFromInt(50_000), nil))
}

func TestPredictAbstainsOnAllNeutralSignals(t *testing.T) {
	ensemble := NewExpertEnsemble(testLogger())
	expert := testExpert(0.35, map[string]float64{
		models.IndicatorRSI: 1.0,
	})
	signals := []models.SignalReading{models.NeutralReading(models.IndicatorRSI)}

	assert.Nil(t, ensemble.Predict(expert, "15m", "BTC/USDT", signals, decimal.NewFromInt(50_000), nil))
}

func TestPredictAppliesImportanceOverlay(t *testing.T) {
	ensemble := NewExpertEnsemble(testLogger())
	expert := testExpert(0.35, map[string]float64{
		models.IndicatorRSI:  0.5,
		models.IndicatorMACD: 0.5,
	})
	signals := []models.SignalReading{
		{Indicator: models.IndicatorRSI, Direction: models.DirectionLong, Strength: 80},
		{Indicator: models.IndicatorMACD, Direction: models.DirectionShort, Strength: 20},
	}
	importance := map[string]float64{
		models.IndicatorRSI: importanceBoostFactor,
	}

	p := ensemble.Predict(expert, "15m", "BTC/USDT", signals, decimal.NewFromInt(50_000), importance)

	require.NotNil(t, p)
	assert.InDelta(t, 0.5*importanceBoostFactor, p.Contributions[models.IndicatorRSI].Weight, 1e-9)
	assert.InDelta(t, 0.5, p.Contributions[models.IndicatorMACD].Weight, 1e-9, "unlisted indicators keep their stored weight")

	// The overlay never mutates the stored profile.
	assert.Equal(t, 0.5, expert.WeightsFor("15m")[models.IndicatorRSI])
}

func TestDefaultExpertProfiles(t *testing.T) {
	profiles := DefaultExpertProfiles()
	require.Len(t, profiles, 5)

	seen := make(map[string]bool)
	for _, expert := range profiles {
		assert.False(t, seen[expert.ID], "expert ids must be unique")
		seen[expert.ID] = true

		for _, tf := range []string{"15m", "1h"} {
			weights := expert.WeightsFor(tf)
			require.Len(t, weights, len(models.AllIndicators))
			for indicator, w := range weights {
				assert.GreaterOrEqual(t, w, models.MinIndicatorWeight, "%s/%s/%s", expert.ID, tf, indicator)
				assert.LessOrEqual(t, w, models.MaxIndicatorWeight, "%s/%s/%s", expert.ID, tf, indicator)
			}

			threshold := expert.ThresholdFor(tf)
			assert.GreaterOrEqual(t, threshold, models.MinConfidenceThreshold)
			assert.LessOrEqual(t, threshold, models.MaxConfidenceThreshold)
		}
	}
}
