package services

import (
	"context"
	"math"
	"sort"

	"github.com/ensembot/ensembot/internal/database"
	"github.com/ensembot/ensembot/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	baseLearningRate = 0.05
	maxLearningRate  = 0.15

	// disagreementDamping softens the adjustment applied to indicators that
	// disagreed with the final signal.
	disagreementDamping = 0.6

	// Threshold adaptation: below lowSuccessRate the gate is raised, above
	// highSuccessRate it is lowered. The window must hold at least
	// thresholdMinOutcomes entries before either applies.
	thresholdMinOutcomes = 5
	lowSuccessRate       = 0.40
	highSuccessRate      = 0.70
	thresholdRaiseStep   = 0.02
	thresholdLowerStep   = 0.01

	// Importance estimation scans this many recent resolved predictions and
	// rates each indicator by its success rate among the predictions where
	// its absolute contribution ranked in the top share.
	importanceLookback       = 30
	importanceTopShare       = 0.30
	importanceBoostLevel     = 0.65
	importanceDiscountLevel  = 0.35
	importanceBoostFactor    = 1.15
	importanceDiscountFactor = 0.85
)

// AdaptationEngine nudges expert weights and thresholds from verified
// outcomes. It is the only mutator of expert profiles.
type AdaptationEngine struct {
	predictions *database.PredictionRepository
	logger      *logrus.Logger
}

// NewAdaptationEngine creates a new adaptation engine.
func NewAdaptationEngine(predictions *database.PredictionRepository, logger *logrus.Logger) *AdaptationEngine {
	return &AdaptationEngine{predictions: predictions, logger: logger}
}

// learningRate derives the dynamic rate from the realized profit magnitude:
// the base rate scaled up logarithmically for large moves, halved for small
// ones, and clipped at the ceiling.
func learningRate(profitPercent float64) float64 {
	magnitude := math.Abs(profitPercent)
	rate := baseLearningRate
	if magnitude >= 1 {
		rate *= 1 + math.Log2(magnitude)
	} else {
		rate *= 0.5
	}
	if rate > maxLearningRate {
		rate = maxLearningRate
	}
	return rate
}

// Learn applies one verified outcome to the expert: per-indicator weight
// adjustment, the rolling outcome window, and threshold adaptation. The
// prediction must carry a realized profit percent; without one learning is
// skipped.
func (a *AdaptationEngine) Learn(expert *models.ExpertProfile, prediction *models.Prediction, wasSuccess bool) {
	if prediction.ProfitPercent == nil {
		a.logger.WithField("prediction_id", prediction.ID).Debug("Skipping learning without realized profit")
		return
	}

	rate := learningRate(*prediction.ProfitPercent)
	weights := expert.WeightsFor(prediction.Timeframe)

	for indicator, contribution := range prediction.Contributions {
		weight, ok := weights[indicator]
		if !ok {
			continue
		}

		agreed := contribution.Direction == prediction.Signal
		var adjusted float64
		switch {
		case wasSuccess && agreed:
			adjusted = weight * (1 + rate)
		case wasSuccess && !agreed:
			adjusted = weight * (1 - disagreementDamping*rate)
		case !wasSuccess && agreed:
			adjusted = weight * (1 - rate)
		default:
			adjusted = weight * (1 + disagreementDamping*rate)
		}
		weights[indicator] = models.ClampWeight(adjusted)
	}

	window := expert.OutcomesFor(prediction.Timeframe)
	window.Append(wasSuccess)
	a.adaptThreshold(expert, prediction.Timeframe, window)

	a.logger.WithFields(logrus.Fields{
		"expert":    expert.ID,
		"timeframe": prediction.Timeframe,
		"success":   wasSuccess,
		"rate":      rate,
	}).Info("Applied learning update")
}

// adaptThreshold moves the confidence gate against the rolling success rate:
// unreliable experts get more conservative, reliable ones speak more often.
func (a *AdaptationEngine) adaptThreshold(expert *models.ExpertProfile, timeframe string, window *models.OutcomeWindow) {
	if window.Len() < thresholdMinOutcomes {
		return
	}
	if expert.ConfidenceThresholdByTimeframe == nil {
		expert.ConfidenceThresholdByTimeframe = make(map[string]float64)
	}

	threshold := expert.ThresholdFor(timeframe)
	rate := window.SuccessRate()
	switch {
	case rate < lowSuccessRate:
		threshold += thresholdRaiseStep
	case rate > highSuccessRate:
		threshold -= thresholdLowerStep
	default:
		return
	}
	expert.ConfidenceThresholdByTimeframe[timeframe] = models.ClampThreshold(threshold)
}

// EstimateImportance rates each indicator over the expert's recent resolved
// predictions. For every indicator it takes the predictions where that
// indicator's absolute contribution ranked in the top share, computes the
// success rate among them, and maps high performers to a boost factor and
// poor ones to a discount. The result is a per-call overlay; stored weights
// are never touched.
func (a *AdaptationEngine) EstimateImportance(ctx context.Context, expertID, timeframe string) map[string]float64 {
	resolved, err := a.predictions.ListRecentResolved(ctx, expertID, timeframe, importanceLookback)
	if err != nil {
		a.logger.WithError(err).WithField("expert", expertID).Warn("Importance estimation skipped")
		return nil
	}
	if len(resolved) == 0 {
		return nil
	}

	factors := make(map[string]float64)
	for _, indicator := range models.AllIndicators {
		type sample struct {
			contribution float64
			success      bool
		}
		var samples []sample
		for _, p := range resolved {
			c, ok := p.Contributions[indicator]
			if !ok {
				continue
			}
			samples = append(samples, sample{
				contribution: math.Abs(c.Contribution),
				success:      p.Status == models.PredictionSuccess,
			})
		}
		if len(samples) == 0 {
			continue
		}

		sort.Slice(samples, func(i, j int) bool {
			return samples[i].contribution > samples[j].contribution
		})
		top := int(math.Ceil(float64(len(samples)) * importanceTopShare))
		if top == 0 {
			continue
		}

		wins := 0
		for _, s := range samples[:top] {
			if s.success {
				wins++
			}
		}
		successRate := float64(wins) / float64(top)

		switch {
		case successRate > importanceBoostLevel:
			factors[indicator] = importanceBoostFactor
		case successRate < importanceDiscountLevel:
			factors[indicator] = importanceDiscountFactor
		}
	}
	return factors
}
