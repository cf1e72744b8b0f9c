package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembot/ensembot/internal/models"
)

func directional(signal models.Direction) *models.Prediction {
	return &models.Prediction{Signal: signal, Status: models.PredictionPending}
}

func TestConsensusMajority(t *testing.T) {
	predictions := []*models.Prediction{
		directional(models.DirectionLong),
		directional(models.DirectionLong),
		directional(models.DirectionLong),
		directional(models.DirectionShort),
	}

	result := Consensus(5, predictions)

	assert.Equal(t, models.DirectionLong, result.Signal)
	assert.Equal(t, 3, result.LongCount)
	assert.Equal(t, 1, result.ShortCount)
	assert.Equal(t, 1, result.NeutralCount, "abstainers count as neutral")
	assert.Equal(t, 5, result.LongCount+result.ShortCount+result.NeutralCount)
	assert.InDelta(t, 60.0, result.Confidence, 1e-9)
}

func TestConsensusTieResolvesNeutral(t *testing.T) {
	predictions := []*models.Prediction{
		directional(models.DirectionLong),
		directional(models.DirectionLong),
		directional(models.DirectionShort),
		directional(models.DirectionShort),
	}

	result := Consensus(5, predictions)

	assert.Equal(t, models.DirectionNeutral, result.Signal)
	assert.InDelta(t, 20.0, result.Confidence, 1e-9)
}

func TestConsensusAllAbstained(t *testing.T) {
	result := Consensus(5, nil)

	assert.Equal(t, models.DirectionNeutral, result.Signal)
	assert.Equal(t, 5, result.NeutralCount)
	assert.InDelta(t, 100.0, result.Confidence, 1e-9)
}

func TestConsensusEmptyPanel(t *testing.T) {
	result := Consensus(0, nil)
	assert.Equal(t, models.DirectionNeutral, result.Signal)
	assert.Equal(t, 0.0, result.Confidence)
}

func pendingPrediction(signal models.Direction, entryPrice float64) *models.Prediction {
	return &models.Prediction{
		ID:         "p-1",
		Signal:     signal,
		EntryPrice: decimal.NewFromFloat(entryPrice),
		Status:     models.PredictionPending,
	}
}

func TestVerifyLongSuccess(t *testing.T) {
	verifier := NewVerifier(20)

	// Entry 100, exit 102: +2% price move, +40% leveraged.
	p := verifier.Verify(pendingPrediction(models.DirectionLong, 100), decimal.NewFromInt(102))

	assert.Equal(t, models.PredictionSuccess, p.Status)
	require.NotNil(t, p.ProfitPercent)
	assert.InDelta(t, 40.0, *p.ProfitPercent, 1e-9)
	require.NotNil(t, p.ExitPrice)
	assert.True(t, p.ExitPrice.Equal(decimal.NewFromInt(102)))
	assert.NotNil(t, p.CheckedAt)
}

func TestVerifyDirectionalBar(t *testing.T) {
	tests := []struct {
		name      string
		signal    models.Direction
		entry     float64
		exit      float64
		want      models.PredictionStatus
		wantDelta float64
	}{
		{"long below the bar fails", models.DirectionLong, 100, 100.2, models.PredictionFail, 4},
		{"long exactly at the bar succeeds", models.DirectionLong, 100, 100.25, models.PredictionSuccess, 5},
		{"long in the wrong direction fails", models.DirectionLong, 100, 99, models.PredictionFail, -20},
		{"short clearing the bar succeeds", models.DirectionShort, 100, 99, models.PredictionSuccess, -20},
		{"short in the wrong direction fails", models.DirectionShort, 100, 101, models.PredictionFail, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := NewVerifier(20)
			p := verifier.Verify(pendingPrediction(tt.signal, tt.entry), decimal.NewFromFloat(tt.exit))

			assert.Equal(t, tt.want, p.Status)
			require.NotNil(t, p.ProfitPercent)
			assert.InDelta(t, tt.wantDelta, *p.ProfitPercent, 1e-9)
		})
	}
}

func TestVerifyNeutralAlwaysSucceeds(t *testing.T) {
	verifier := NewVerifier(20)
	p := verifier.Verify(pendingPrediction(models.DirectionNeutral, 100), decimal.NewFromInt(80))
	assert.Equal(t, models.PredictionSuccess, p.Status)
}

func TestVerifyResolvedIsUntouched(t *testing.T) {
	verifier := NewVerifier(20)
	p := pendingPrediction(models.DirectionLong, 100)
	p.Status = models.PredictionFail

	out := verifier.Verify(p, decimal.NewFromInt(200))

	assert.Equal(t, models.PredictionFail, out.Status)
	assert.Nil(t, out.ExitPrice)
	assert.Nil(t, out.ProfitPercent)
}
