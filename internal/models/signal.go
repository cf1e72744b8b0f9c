package models

// Direction is the directional call carried by a signal or prediction.
type Direction string

const (
	DirectionLong    Direction = "long"
	DirectionShort   Direction = "short"
	DirectionNeutral Direction = "neutral"
)

// Indicator names emitted by the signal generator. The set is closed: expert
// weight tables and the adaptation engine key on these exact strings.
const (
	IndicatorRSI       = "rsi"
	IndicatorMACD      = "macd"
	IndicatorBollinger = "bollinger"
	IndicatorFunding   = "funding_rate"
	IndicatorVolume    = "volume"
	IndicatorMATrend   = "ma_trend"
	IndicatorSentiment = "sentiment"
)

// AllIndicators lists every indicator in generation order.
var AllIndicators = []string{
	IndicatorRSI,
	IndicatorMACD,
	IndicatorBollinger,
	IndicatorFunding,
	IndicatorVolume,
	IndicatorMATrend,
	IndicatorSentiment,
}

// SignalReading is one indicator's normalized verdict for the current cycle.
// Strength is in [0,100]; a neutral reading carries strength 0.
type SignalReading struct {
	Indicator string    `json:"indicator"`
	Direction Direction `json:"direction"`
	Strength  float64   `json:"strength"`
}

// NeutralReading returns the insufficient-data / provider-failure fallback
// for an indicator.
func NeutralReading(indicator string) SignalReading {
	return SignalReading{Indicator: indicator, Direction: DirectionNeutral, Strength: 0}
}
