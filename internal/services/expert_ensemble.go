package services

import (
	"time"

	"github.com/ensembot/ensembot/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// scoreDominanceFactor: the winning side must beat the other by this margin
// before the ensemble declares a direction.
const scoreDominanceFactor = 1.15

// DefaultExpertProfiles is the canonical seed table for the panel. It is the
// single source of these numbers; runtime state lives in the expert store
// once seeded.
func DefaultExpertProfiles() []*models.ExpertProfile {
	build := func(id, name, strategy string, weights map[string]float64, threshold float64) *models.ExpertProfile {
		byTimeframe := make(map[string]map[string]float64)
		thresholds := make(map[string]float64)
		for _, tf := range []string{"15m", "1h"} {
			w := make(map[string]float64, len(weights))
			for k, v := range weights {
				w[k] = v
			}
			byTimeframe[tf] = w
			thresholds[tf] = threshold
		}
		return &models.ExpertProfile{
			ID:                             id,
			DisplayName:                    name,
			StrategyLabel:                  strategy,
			WeightsByTimeframe:             byTimeframe,
			ConfidenceThresholdByTimeframe: thresholds,
			RecentOutcomesByTimeframe:      make(map[string]*models.OutcomeWindow),
		}
	}

	return []*models.ExpertProfile{
		build("oracle", "The Oracle", models.StrategyOscillator, map[string]float64{
			models.IndicatorRSI:       0.85,
			models.IndicatorMACD:      0.45,
			models.IndicatorBollinger: 0.70,
			models.IndicatorFunding:   0.30,
			models.IndicatorVolume:    0.40,
			models.IndicatorMATrend:   0.35,
			models.IndicatorSentiment: 0.50,
		}, 0.55),
		build("maverick", "Maverick", models.StrategyMomentumReversal, map[string]float64{
			models.IndicatorRSI:       0.55,
			models.IndicatorMACD:      0.85,
			models.IndicatorBollinger: 0.40,
			models.IndicatorFunding:   0.45,
			models.IndicatorVolume:    0.60,
			models.IndicatorMATrend:   0.50,
			models.IndicatorSentiment: 0.30,
		}, 0.50),
		build("sniper", "Sniper", models.StrategyScalping, map[string]float64{
			models.IndicatorRSI:       0.60,
			models.IndicatorMACD:      0.55,
			models.IndicatorBollinger: 0.75,
			models.IndicatorFunding:   0.25,
			models.IndicatorVolume:    0.80,
			models.IndicatorMATrend:   0.30,
			models.IndicatorSentiment: 0.25,
		}, 0.60),
		build("drifter", "Drifter", models.StrategyTrendFollowing, map[string]float64{
			models.IndicatorRSI:       0.35,
			models.IndicatorMACD:      0.65,
			models.IndicatorBollinger: 0.35,
			models.IndicatorFunding:   0.40,
			models.IndicatorVolume:    0.50,
			models.IndicatorMATrend:   0.90,
			models.IndicatorSentiment: 0.45,
		}, 0.50),
		build("contrarian", "Contrarian", models.StrategyCounterTrend, map[string]float64{
			models.IndicatorRSI:       0.70,
			models.IndicatorMACD:      0.35,
			models.IndicatorBollinger: 0.65,
			models.IndicatorFunding:   0.60,
			models.IndicatorVolume:    0.35,
			models.IndicatorMATrend:   0.25,
			models.IndicatorSentiment: 0.75,
		}, 0.55),
	}
}

// ExpertEnsemble converts a signal set into gated per-expert predictions.
type ExpertEnsemble struct {
	logger *logrus.Logger
}

// NewExpertEnsemble creates a new ensemble.
func NewExpertEnsemble(logger *logrus.Logger) *ExpertEnsemble {
	return &ExpertEnsemble{logger: logger}
}

// Predict scores a signal set against one expert's weights for the given
// timeframe. The expert abstains (nil) when the directional call is neutral
// or the normalized confidence falls below its timeframe threshold.
// importance optionally pre-scales weights per indicator; pass nil to skip.
func (e *ExpertEnsemble) Predict(expert *models.ExpertProfile, timeframe, instrument string, signals []models.SignalReading, currentPrice decimal.Decimal, importance map[string]float64) *models.Prediction {
	weights := expert.WeightsFor(timeframe)
	if weights == nil {
		return nil
	}

	longScore := 0.0
	shortScore := 0.0
	contributions := make(map[string]models.IndicatorContribution, len(signals))

	for _, signal := range signals {
		weight, ok := weights[signal.Indicator]
		if !ok {
			continue
		}
		if factor, ok := importance[signal.Indicator]; ok {
			weight = models.ClampWeight(weight * factor)
		}

		contribution := signal.Strength * weight
		contributions[signal.Indicator] = models.IndicatorContribution{
			Direction:    signal.Direction,
			Strength:     signal.Strength,
			Weight:       weight,
			Contribution: contribution,
		}

		switch signal.Direction {
		case models.DirectionLong:
			longScore += contribution
		case models.DirectionShort:
			shortScore += contribution
		}
	}

	signal := models.DirectionNeutral
	confidence := 0.0
	total := longScore + shortScore
	switch {
	case longScore > shortScore*scoreDominanceFactor:
		signal = models.DirectionLong
		confidence = longScore / total * 100
	case shortScore > longScore*scoreDominanceFactor:
		signal = models.DirectionShort
		confidence = shortScore / total * 100
	}

	if signal == models.DirectionNeutral {
		return nil
	}

	threshold := expert.ThresholdFor(timeframe)
	if confidence/100 < threshold {
		e.logger.WithFields(logrus.Fields{
			"expert":     expert.ID,
			"timeframe":  timeframe,
			"confidence": confidence,
			"threshold":  threshold,
		}).Debug("Expert abstained below confidence threshold")
		return nil
	}

	return &models.Prediction{
		ID:            uuid.NewString(),
		ExpertID:      expert.ID,
		Instrument:    instrument,
		Timeframe:     timeframe,
		Signal:        signal,
		Confidence:    confidence,
		EntryPrice:    currentPrice,
		Status:        models.PredictionPending,
		Contributions: contributions,
		CreatedAt:     time.Now().UTC(),
	}
}
