package services

import (
	"context"
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/ensembot/ensembot/internal/market"
	"github.com/ensembot/ensembot/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	rsiPeriod       = 14
	macdFastPeriod  = 12
	macdSlowPeriod  = 26
	macdSignalSpan  = 9
	bollingerPeriod = 20
	bollingerStdDev = 2.0
	emaFastPeriod   = 9
	emaSlowPeriod   = 21
	volumeLookback  = 20
)

// SignalGenerator computes the seven technical signals for one instrument
// from candle history. Five are pure functions of the candles; funding rate
// and sentiment consult external providers and degrade to neutral on failure.
type SignalGenerator struct {
	marketData market.DataProvider
	sentiment  market.SentimentProvider
	logger     *logrus.Logger
}

// NewSignalGenerator creates a new signal generator.
func NewSignalGenerator(marketData market.DataProvider, sentiment market.SentimentProvider, logger *logrus.Logger) *SignalGenerator {
	return &SignalGenerator{
		marketData: marketData,
		sentiment:  sentiment,
		logger:     logger,
	}
}

// Generate returns one reading per indicator, in models.AllIndicators order.
// Indicators never fail: insufficient history and provider outages both
// produce a neutral reading with strength 0.
func (g *SignalGenerator) Generate(ctx context.Context, instrument string, candles []models.Candle, currentPrice decimal.Decimal) []models.SignalReading {
	closes := make([]float64, len(candles))
	opens := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i], _ = c.Close.Float64()
		opens[i], _ = c.Open.Float64()
		volumes[i], _ = c.Volume.Float64()
	}
	price, _ := currentPrice.Float64()

	return []models.SignalReading{
		g.rsiSignal(closes),
		g.macdSignal(closes),
		g.bollingerSignal(closes, price),
		g.fundingSignal(ctx, instrument),
		g.volumeSignal(opens, closes, volumes),
		g.maTrendSignal(closes),
		g.sentimentSignal(ctx),
	}
}

// rsiSignal reads the 14-period RSI. Oversold levels argue long, overbought
// short; strength grows linearly with distance past the 30/70 bands, with a
// weaker graded zone between 40 and 60.
func (g *SignalGenerator) rsiSignal(closes []float64) models.SignalReading {
	if len(closes) < rsiPeriod+1 {
		return models.NeutralReading(models.IndicatorRSI)
	}

	rsiIndicator := momentum.NewRsiWithPeriod[float64](rsiPeriod)
	values := helper.ChanToSlice(rsiIndicator.Compute(helper.SliceToChan(closes)))
	if len(values) == 0 {
		return models.NeutralReading(models.IndicatorRSI)
	}
	rsi := values[len(values)-1]

	switch {
	case rsi <= 30:
		return models.SignalReading{Indicator: models.IndicatorRSI, Direction: models.DirectionLong, Strength: clipStrength(70 + (30-rsi)*2)}
	case rsi <= 40:
		return models.SignalReading{Indicator: models.IndicatorRSI, Direction: models.DirectionLong, Strength: clipStrength(40 + (40-rsi)*3)}
	case rsi >= 70:
		return models.SignalReading{Indicator: models.IndicatorRSI, Direction: models.DirectionShort, Strength: clipStrength(70 + (rsi-70)*2)}
	case rsi >= 60:
		return models.SignalReading{Indicator: models.IndicatorRSI, Direction: models.DirectionShort, Strength: clipStrength(40 + (rsi-60)*3)}
	}
	return models.NeutralReading(models.IndicatorRSI)
}

// macdSignal reads the MACD histogram. Direction follows the histogram sign;
// strength scales linearly with the histogram's size relative to price.
func (g *SignalGenerator) macdSignal(closes []float64) models.SignalReading {
	if len(closes) < macdSlowPeriod+macdSignalSpan {
		return models.NeutralReading(models.IndicatorMACD)
	}

	macdIndicator := trend.NewMacdWithPeriod[float64](macdFastPeriod, macdSlowPeriod, macdSignalSpan)
	macdLine, signalLine := macdIndicator.Compute(helper.SliceToChan(closes))
	macdValues := helper.ChanToSlice(macdLine)
	signalValues := helper.ChanToSlice(signalLine)
	if len(macdValues) == 0 || len(signalValues) == 0 {
		return models.NeutralReading(models.IndicatorMACD)
	}

	n := len(macdValues)
	if len(signalValues) < n {
		n = len(signalValues)
	}
	histogram := macdValues[n-1] - signalValues[n-1]
	lastClose := closes[len(closes)-1]
	if lastClose <= 0 || histogram == 0 {
		return models.NeutralReading(models.IndicatorMACD)
	}

	strength := clipStrength(math.Abs(histogram) / lastClose * 100 * 20)
	direction := models.DirectionLong
	if histogram < 0 {
		direction = models.DirectionShort
	}
	return models.SignalReading{Indicator: models.IndicatorMACD, Direction: direction, Strength: strength}
}

// bollingerSignal compares the current price to 20-period, 2-sigma bands.
// Touching the lower band argues long, the upper band short; strength scales
// with how far past the band the price sits relative to the band width.
func (g *SignalGenerator) bollingerSignal(closes []float64, price float64) models.SignalReading {
	if len(closes) < bollingerPeriod || price <= 0 {
		return models.NeutralReading(models.IndicatorBollinger)
	}

	window := closes[len(closes)-bollingerPeriod:]
	mean := 0.0
	for _, v := range window {
		mean += v
	}
	mean /= float64(len(window))

	variance := 0.0
	for _, v := range window {
		diff := v - mean
		variance += diff * diff
	}
	stdDev := math.Sqrt(variance / float64(len(window)))
	if stdDev == 0 {
		return models.NeutralReading(models.IndicatorBollinger)
	}

	upper := mean + bollingerStdDev*stdDev
	lower := mean - bollingerStdDev*stdDev
	bandWidth := upper - lower

	if price <= lower {
		strength := clipStrength(60 + (lower-price)/bandWidth*200)
		return models.SignalReading{Indicator: models.IndicatorBollinger, Direction: models.DirectionLong, Strength: strength}
	}
	if price >= upper {
		strength := clipStrength(60 + (price-upper)/bandWidth*200)
		return models.SignalReading{Indicator: models.IndicatorBollinger, Direction: models.DirectionShort, Strength: strength}
	}
	return models.NeutralReading(models.IndicatorBollinger)
}

// fundingSignal reads the perpetual funding rate: heavily positive funding
// means crowded longs and argues short, and vice versa. Strength scales
// linearly, saturating at a 0.1% rate. Provider failures degrade to neutral.
func (g *SignalGenerator) fundingSignal(ctx context.Context, instrument string) models.SignalReading {
	rate, err := g.marketData.GetFundingRate(ctx, instrument)
	if err != nil {
		g.logger.WithError(err).WithField("instrument", instrument).Warn("Funding rate unavailable, using neutral reading")
		return models.NeutralReading(models.IndicatorFunding)
	}

	const deadband = 0.0001 // 0.01%, the typical baseline rate
	if math.Abs(rate) < deadband {
		return models.NeutralReading(models.IndicatorFunding)
	}

	strength := clipStrength(math.Abs(rate) / 0.001 * 100)
	direction := models.DirectionShort
	if rate < 0 {
		direction = models.DirectionLong
	}
	return models.SignalReading{Indicator: models.IndicatorFunding, Direction: direction, Strength: strength}
}

// volumeSignal compares the latest candle's volume to the average of the
// preceding lookback window. A surge confirms the candle's body direction;
// strength scales with the surge ratio.
func (g *SignalGenerator) volumeSignal(opens, closes, volumes []float64) models.SignalReading {
	if len(volumes) < volumeLookback+1 {
		return models.NeutralReading(models.IndicatorVolume)
	}

	last := len(volumes) - 1
	sum := 0.0
	for _, v := range volumes[last-volumeLookback : last] {
		sum += v
	}
	avg := sum / float64(volumeLookback)
	if avg <= 0 {
		return models.NeutralReading(models.IndicatorVolume)
	}

	ratio := volumes[last] / avg
	if ratio < 1.5 {
		return models.NeutralReading(models.IndicatorVolume)
	}

	strength := clipStrength((ratio - 1) * 50)
	direction := models.DirectionLong
	if closes[last] < opens[last] {
		direction = models.DirectionShort
	}
	return models.SignalReading{Indicator: models.IndicatorVolume, Direction: direction, Strength: strength}
}

// maTrendSignal compares a fast EMA to a slow EMA. Direction follows the
// crossover; strength scales with the percentage gap between the averages.
func (g *SignalGenerator) maTrendSignal(closes []float64) models.SignalReading {
	if len(closes) < emaSlowPeriod+1 {
		return models.NeutralReading(models.IndicatorMATrend)
	}

	fastIndicator := trend.NewEmaWithPeriod[float64](emaFastPeriod)
	slowIndicator := trend.NewEmaWithPeriod[float64](emaSlowPeriod)
	fastValues := helper.ChanToSlice(fastIndicator.Compute(helper.SliceToChan(closes)))
	slowValues := helper.ChanToSlice(slowIndicator.Compute(helper.SliceToChan(closes)))
	if len(fastValues) == 0 || len(slowValues) == 0 {
		return models.NeutralReading(models.IndicatorMATrend)
	}

	fast := fastValues[len(fastValues)-1]
	slow := slowValues[len(slowValues)-1]
	if slow <= 0 || fast == slow {
		return models.NeutralReading(models.IndicatorMATrend)
	}

	gapPercent := math.Abs(fast-slow) / slow * 100
	strength := clipStrength(gapPercent * 50)
	direction := models.DirectionLong
	if fast < slow {
		direction = models.DirectionShort
	}
	return models.SignalReading{Indicator: models.IndicatorMATrend, Direction: direction, Strength: strength}
}

// sentimentSignal reads the fear/greed index contrarian-style: extreme fear
// argues long, extreme greed short, linearly stronger toward the extremes.
func (g *SignalGenerator) sentimentSignal(ctx context.Context) models.SignalReading {
	value, _, err := g.sentiment.GetIndex(ctx)
	if err != nil {
		g.logger.WithError(err).Warn("Sentiment index unavailable, using neutral reading")
		return models.NeutralReading(models.IndicatorSentiment)
	}

	switch {
	case value <= 40:
		return models.SignalReading{Indicator: models.IndicatorSentiment, Direction: models.DirectionLong, Strength: clipStrength((40 - value) * 2.5)}
	case value >= 60:
		return models.SignalReading{Indicator: models.IndicatorSentiment, Direction: models.DirectionShort, Strength: clipStrength((value - 60) * 2.5)}
	}
	return models.NeutralReading(models.IndicatorSentiment)
}

func clipStrength(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
