package services

import (
	"github.com/ensembot/ensembot/internal/models"
)

// ExitContext carries everything an exit policy may consult for one open
// position on one cycle.
type ExitContext struct {
	Position        *models.TradingPosition
	LeveragedProfit float64
	HighestProfit   float64
	HoldMinutes     float64
	// Signals are the current readings for the position's instrument,
	// letting reversal-style policies react to indicator flips.
	Signals []models.SignalReading
}

// ExitDecision is an exit policy's verdict for one cycle.
type ExitDecision struct {
	Exit   bool
	Reason string
}

// ExitStrategy encodes one expert archetype's time/target/stop policy.
type ExitStrategy func(ExitContext) ExitDecision

// exitStrategies maps strategy labels to their policies. The set is closed;
// unknown labels fall back to defaultExit.
var exitStrategies = map[string]ExitStrategy{
	models.StrategyOscillator:       oscillatorExit,
	models.StrategyMomentumReversal: momentumReversalExit,
	models.StrategyScalping:         scalpingExit,
	models.StrategyTrendFollowing:   trendFollowingExit,
	models.StrategyCounterTrend:     counterTrendExit,
}

// ExitStrategyFor returns the policy for a strategy label.
func ExitStrategyFor(label string) ExitStrategy {
	if strategy, ok := exitStrategies[label]; ok {
		return strategy
	}
	return defaultExit
}

func hold() ExitDecision { return ExitDecision{} }

func exit(reason string) ExitDecision { return ExitDecision{Exit: true, Reason: reason} }

// signalAgainstPosition reports whether a given indicator currently reads
// opposite to the position with at least the given strength.
func signalAgainstPosition(ctx ExitContext, indicator string, minStrength float64) bool {
	opposite := models.DirectionShort
	if ctx.Position.Direction == models.DirectionShort {
		opposite = models.DirectionLong
	}
	for _, s := range ctx.Signals {
		if s.Indicator == indicator {
			return s.Direction == opposite && s.Strength >= minStrength
		}
	}
	return false
}

// oscillatorExit closes on an oscillator reversal once a minimum profit is
// locked in, or on fixed profit/stop bands.
func oscillatorExit(ctx ExitContext) ExitDecision {
	if signalAgainstPosition(ctx, models.IndicatorRSI, 60) && ctx.LeveragedProfit >= 2 {
		return exit("oscillator reversal")
	}
	if ctx.LeveragedProfit >= 12 {
		return exit("profit target")
	}
	if ctx.LeveragedProfit <= -8 {
		return exit("stop loss")
	}
	return hold()
}

// momentumReversalExit bails out the moment trend momentum flips against the
// position, with wide fallback bands.
func momentumReversalExit(ctx ExitContext) ExitDecision {
	if signalAgainstPosition(ctx, models.IndicatorMACD, 1) {
		return exit("signal flip")
	}
	if ctx.LeveragedProfit >= 15 {
		return exit("profit target")
	}
	if ctx.LeveragedProfit <= -10 {
		return exit("stop loss")
	}
	return hold()
}

// scalpingExit shrinks its profit target as hold time grows, taking smaller
// wins the longer the position sits.
func scalpingExit(ctx ExitContext) ExitDecision {
	target := 10 - ctx.HoldMinutes*0.5
	if target < 3 {
		target = 3
	}
	if ctx.LeveragedProfit >= target {
		return exit("scalp target")
	}
	if ctx.LeveragedProfit <= -6 {
		return exit("stop loss")
	}
	return hold()
}

// trendFollowingExit trails the peak by 3 points once profit has cleared 5,
// with a large win target.
func trendFollowingExit(ctx ExitContext) ExitDecision {
	if ctx.LeveragedProfit >= 25 {
		return exit("profit target")
	}
	if ctx.HighestProfit > 5 && ctx.LeveragedProfit <= ctx.HighestProfit-3 {
		return exit("trailing stop")
	}
	if ctx.LeveragedProfit <= -10 {
		return exit("stop loss")
	}
	return hold()
}

// counterTrendExit plays mean reversion on a short clock: modest target,
// tight stop, and a hard window well inside the universal timeout.
func counterTrendExit(ctx ExitContext) ExitDecision {
	if ctx.LeveragedProfit >= 6 {
		return exit("profit target")
	}
	if ctx.LeveragedProfit <= -4 {
		return exit("stop loss")
	}
	if ctx.HoldMinutes >= 10 {
		return exit("time window")
	}
	return hold()
}

// defaultExit is used for unmatched strategy labels.
func defaultExit(ctx ExitContext) ExitDecision {
	if ctx.LeveragedProfit >= 10 {
		return exit("profit target")
	}
	if ctx.LeveragedProfit <= -10 {
		return exit("stop loss")
	}
	return hold()
}
