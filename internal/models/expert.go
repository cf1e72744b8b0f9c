package models

const (
	// MinIndicatorWeight and MaxIndicatorWeight bound every per-indicator
	// weight after any adaptation step.
	MinIndicatorWeight = 0.05
	MaxIndicatorWeight = 1.0

	// MinConfidenceThreshold and MaxConfidenceThreshold bound the per-
	// timeframe prediction gate.
	MinConfidenceThreshold = 0.35
	MaxConfidenceThreshold = 0.75

	// OutcomeWindowSize caps the rolling success/fail window per timeframe.
	OutcomeWindowSize = 10

	// DefaultTimeframe is used when an expert has no weights or threshold
	// configured for a requested timeframe.
	DefaultTimeframe = "15m"
)

// Strategy labels understood by the trading simulator's exit-strategy table.
const (
	StrategyOscillator       = "oscillator"
	StrategyMomentumReversal = "momentum_reversal"
	StrategyScalping         = "scalping"
	StrategyTrendFollowing   = "trend_following"
	StrategyCounterTrend     = "counter_trend"
)

// OutcomeWindow is a bounded sequence of recent prediction outcomes,
// oldest first. Appending past capacity drops the oldest entry.
type OutcomeWindow struct {
	Outcomes []bool `json:"outcomes"`
}

// Append records an outcome, evicting the oldest once the window is full.
func (w *OutcomeWindow) Append(success bool) {
	w.Outcomes = append(w.Outcomes, success)
	if len(w.Outcomes) > OutcomeWindowSize {
		w.Outcomes = w.Outcomes[len(w.Outcomes)-OutcomeWindowSize:]
	}
}

// Len returns the number of recorded outcomes.
func (w *OutcomeWindow) Len() int { return len(w.Outcomes) }

// SuccessRate returns the fraction of successes in the window, 0 when empty.
func (w *OutcomeWindow) SuccessRate() float64 {
	if len(w.Outcomes) == 0 {
		return 0
	}
	wins := 0
	for _, ok := range w.Outcomes {
		if ok {
			wins++
		}
	}
	return float64(wins) / float64(len(w.Outcomes))
}

// ExpertProfile is one independently parameterized scoring profile in the
// panel. Profiles are seeded from the canonical default table at startup,
// persisted across runs, and mutated only by the adaptation engine.
type ExpertProfile struct {
	ID            string `json:"id" db:"id"`
	DisplayName   string `json:"display_name" db:"display_name"`
	StrategyLabel string `json:"strategy_label" db:"strategy_label"`

	// WeightsByTimeframe maps timeframe -> indicator -> weight in
	// [MinIndicatorWeight, MaxIndicatorWeight].
	WeightsByTimeframe map[string]map[string]float64 `json:"weights_by_timeframe" db:"weights_by_timeframe"`

	// ConfidenceThresholdByTimeframe maps timeframe -> gate in
	// [MinConfidenceThreshold, MaxConfidenceThreshold].
	ConfidenceThresholdByTimeframe map[string]float64 `json:"confidence_threshold_by_timeframe" db:"confidence_threshold_by_timeframe"`

	// RecentOutcomesByTimeframe holds the rolling outcome window per
	// timeframe.
	RecentOutcomesByTimeframe map[string]*OutcomeWindow `json:"recent_outcomes_by_timeframe" db:"recent_outcomes_by_timeframe"`
}

// WeightsFor returns the indicator weight map for a timeframe, falling back
// to the default timeframe's weights when none is configured.
func (e *ExpertProfile) WeightsFor(timeframe string) map[string]float64 {
	if w, ok := e.WeightsByTimeframe[timeframe]; ok {
		return w
	}
	return e.WeightsByTimeframe[DefaultTimeframe]
}

// ThresholdFor returns the confidence gate for a timeframe, falling back to
// the default timeframe and finally the lower bound.
func (e *ExpertProfile) ThresholdFor(timeframe string) float64 {
	if t, ok := e.ConfidenceThresholdByTimeframe[timeframe]; ok {
		return t
	}
	if t, ok := e.ConfidenceThresholdByTimeframe[DefaultTimeframe]; ok {
		return t
	}
	return MinConfidenceThreshold
}

// OutcomesFor returns the rolling window for a timeframe, creating it on
// first use.
func (e *ExpertProfile) OutcomesFor(timeframe string) *OutcomeWindow {
	if e.RecentOutcomesByTimeframe == nil {
		e.RecentOutcomesByTimeframe = make(map[string]*OutcomeWindow)
	}
	w, ok := e.RecentOutcomesByTimeframe[timeframe]
	if !ok {
		w = &OutcomeWindow{}
		e.RecentOutcomesByTimeframe[timeframe] = w
	}
	return w
}

// Clone returns a deep copy of the profile. Readers score against clones
// while the adaptation engine keeps mutating the canonical instance.
func (e *ExpertProfile) Clone() *ExpertProfile {
	out := &ExpertProfile{
		ID:                             e.ID,
		DisplayName:                    e.DisplayName,
		StrategyLabel:                  e.StrategyLabel,
		WeightsByTimeframe:             make(map[string]map[string]float64, len(e.WeightsByTimeframe)),
		ConfidenceThresholdByTimeframe: make(map[string]float64, len(e.ConfidenceThresholdByTimeframe)),
		RecentOutcomesByTimeframe:      make(map[string]*OutcomeWindow, len(e.RecentOutcomesByTimeframe)),
	}
	for timeframe, weights := range e.WeightsByTimeframe {
		copied := make(map[string]float64, len(weights))
		for indicator, weight := range weights {
			copied[indicator] = weight
		}
		out.WeightsByTimeframe[timeframe] = copied
	}
	for timeframe, threshold := range e.ConfidenceThresholdByTimeframe {
		out.ConfidenceThresholdByTimeframe[timeframe] = threshold
	}
	for timeframe, window := range e.RecentOutcomesByTimeframe {
		out.RecentOutcomesByTimeframe[timeframe] = &OutcomeWindow{
			Outcomes: append([]bool(nil), window.Outcomes...),
		}
	}
	return out
}

// ClampWeight folds a weight back into the allowed band.
func ClampWeight(w float64) float64 {
	if w < MinIndicatorWeight {
		return MinIndicatorWeight
	}
	if w > MaxIndicatorWeight {
		return MaxIndicatorWeight
	}
	return w
}

// ClampThreshold folds a confidence threshold back into the allowed band.
func ClampThreshold(t float64) float64 {
	if t < MinConfidenceThreshold {
		return MinConfidenceThreshold
	}
	if t > MaxConfidenceThreshold {
		return MaxConfidenceThreshold
	}
	return t
}
