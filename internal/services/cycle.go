package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ensembot/ensembot/internal/config"
	"github.com/ensembot/ensembot/internal/database"
	"github.com/ensembot/ensembot/internal/market"
	"github.com/ensembot/ensembot/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const aggregatorStateKeyPrefix = "aggregator:state:"

// Engine wires the full pipeline behind a single RunCycle entry point:
// signals -> predictions -> simulator entries/exits -> verification ->
// learning. An external scheduler invokes RunCycle on a fixed interval; the
// tick collector may additionally trigger early per-instrument evaluation.
type Engine struct {
	cfg        *config.Config
	logger     *logrus.Logger
	marketData market.DataProvider
	redis      *database.RedisClient

	aggregators map[string]*CandleAggregator
	generator   *SignalGenerator
	ensemble    *ExpertEnsemble
	simulator   *TradingSimulator
	verifier    *Verifier
	adaptation  *AdaptationEngine

	expertRepo     *database.ExpertRepository
	predictionRepo *database.PredictionRepository

	mu       sync.RWMutex
	profiles map[string]*models.ExpertProfile
}

// NewEngine assembles the engine from its parts.
func NewEngine(
	cfg *config.Config,
	logger *logrus.Logger,
	marketData market.DataProvider,
	redis *database.RedisClient,
	aggregators map[string]*CandleAggregator,
	generator *SignalGenerator,
	ensemble *ExpertEnsemble,
	simulator *TradingSimulator,
	verifier *Verifier,
	adaptation *AdaptationEngine,
	expertRepo *database.ExpertRepository,
	predictionRepo *database.PredictionRepository,
) *Engine {
	return &Engine{
		cfg:            cfg,
		logger:         logger,
		marketData:     marketData,
		redis:          redis,
		aggregators:    aggregators,
		generator:      generator,
		ensemble:       ensemble,
		simulator:      simulator,
		verifier:       verifier,
		adaptation:     adaptation,
		expertRepo:     expertRepo,
		predictionRepo: predictionRepo,
		profiles:       make(map[string]*models.ExpertProfile),
	}
}

// LoadProfiles pulls stored expert profiles and seeds any missing ones from
// the canonical default table. Called once at startup.
func (e *Engine) LoadProfiles(ctx context.Context) error {
	stored, err := e.expertRepo.ListProfiles(ctx)
	if err != nil {
		return fmt.Errorf("failed to load expert profiles: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, profile := range stored {
		e.profiles[profile.ID] = profile
	}
	for _, seed := range DefaultExpertProfiles() {
		if _, ok := e.profiles[seed.ID]; ok {
			continue
		}
		if err := e.expertRepo.UpsertProfile(ctx, seed); err != nil {
			return fmt.Errorf("failed to seed expert %s: %w", seed.ID, err)
		}
		e.profiles[seed.ID] = seed
	}

	e.logger.WithField("experts", len(e.profiles)).Info("Expert panel loaded")
	return nil
}

// Profiles returns a deep-copied snapshot of the panel keyed by expert id.
// Callers read the copies without locking; the canonical instances stay
// behind e.mu and are only touched through applyLearning.
func (e *Engine) Profiles() map[string]*models.ExpertProfile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]*models.ExpertProfile, len(e.profiles))
	for id, p := range e.profiles {
		out[id] = p.Clone()
	}
	return out
}

type instrumentEvaluation struct {
	instrument  string
	price       decimal.Decimal
	signals     []models.SignalReading
	predictions []*models.Prediction
}

// RunCycle runs one full processing pass. Per-instrument work is
// independent and runs in parallel; failures in one unit are logged and do
// not abort the rest of the cycle.
func (e *Engine) RunCycle(ctx context.Context) {
	started := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	evaluations := make([]*instrumentEvaluation, 0, len(e.cfg.Engine.Instruments))

	for _, instrument := range e.cfg.Engine.Instruments {
		wg.Add(1)
		go func(instrument string) {
			defer wg.Done()
			evaluation, err := e.evaluateInstrument(ctx, instrument)
			if err != nil {
				e.logger.WithError(err).WithField("instrument", instrument).Error("Instrument evaluation failed")
				return
			}
			mu.Lock()
			evaluations = append(evaluations, evaluation)
			mu.Unlock()
		}(instrument)
	}
	wg.Wait()

	prices := make(map[string]decimal.Decimal, len(evaluations))
	signalsByInstrument := make(map[string][]models.SignalReading, len(evaluations))
	for _, ev := range evaluations {
		prices[ev.instrument] = ev.price
		signalsByInstrument[ev.instrument] = ev.signals
	}

	if err := e.simulator.ManageOpenPositions(ctx, prices, signalsByInstrument, e.Profiles(), time.Now().UTC()); err != nil {
		e.logger.WithError(err).Error("Open-position sweep failed")
	}

	e.verifyDue(ctx, false)

	e.logger.WithField("elapsed", time.Since(started).String()).Debug("Cycle complete")
}

// TriggerEvaluation runs an early evaluation for one instrument, invoked by
// the tick collector when a smart trigger fires. Verification runs on the
// fast path (age floor only).
func (e *Engine) TriggerEvaluation(ctx context.Context, instrument, reason string) {
	e.logger.WithFields(logrus.Fields{
		"instrument": instrument,
		"reason":     reason,
	}).Info("Early evaluation triggered")

	evaluation, err := e.evaluateInstrument(ctx, instrument)
	if err != nil {
		e.logger.WithError(err).WithField("instrument", instrument).Error("Triggered evaluation failed")
		return
	}

	prices := map[string]decimal.Decimal{evaluation.instrument: evaluation.price}
	signals := map[string][]models.SignalReading{evaluation.instrument: evaluation.signals}
	if err := e.simulator.ManageOpenPositions(ctx, prices, signals, e.Profiles(), time.Now().UTC()); err != nil {
		e.logger.WithError(err).Error("Open-position sweep failed")
	}

	e.verifyDue(ctx, true)
}

// evaluateInstrument generates signals and runs every expert against every
// configured timeframe for one instrument, persisting emitted predictions
// and attempting simulator entries.
func (e *Engine) evaluateInstrument(ctx context.Context, instrument string) (*instrumentEvaluation, error) {
	candles, price, err := e.candleContext(ctx, instrument)
	if err != nil {
		return nil, err
	}

	signals := e.generator.Generate(ctx, instrument, candles, price)
	evaluation := &instrumentEvaluation{instrument: instrument, price: price, signals: signals}

	profiles := e.Profiles()
	for _, timeframe := range e.cfg.Engine.Timeframes {
		var emitted []*models.Prediction
		for _, profile := range profiles {
			importance := e.adaptation.EstimateImportance(ctx, profile.ID, timeframe)
			prediction := e.ensemble.Predict(profile, timeframe, instrument, signals, price, importance)
			if prediction == nil {
				continue
			}
			if err := e.predictionRepo.Insert(ctx, prediction); err != nil {
				e.logger.WithError(err).WithFields(logrus.Fields{
					"expert":     profile.ID,
					"instrument": instrument,
				}).Error("Failed to persist prediction")
				continue
			}
			emitted = append(emitted, prediction)
			evaluation.predictions = append(evaluation.predictions, prediction)

			if _, reason, err := e.simulator.EvaluateEntry(ctx, prediction); err != nil {
				e.logger.WithError(err).WithField("expert", profile.ID).Error("Entry evaluation failed")
			} else if reason != "" {
				e.logger.WithFields(logrus.Fields{
					"expert":     profile.ID,
					"instrument": instrument,
					"reason":     reason,
				}).Debug("Entry rejected")
			}
		}

		consensus := Consensus(len(profiles), emitted)
		e.logger.WithFields(logrus.Fields{
			"instrument": instrument,
			"timeframe":  timeframe,
			"signal":     consensus.Signal,
			"confidence": consensus.Confidence,
			"long":       consensus.LongCount,
			"short":      consensus.ShortCount,
			"neutral":    consensus.NeutralCount,
		}).Info("Panel consensus")
	}

	return evaluation, nil
}

// candleContext assembles the candle history and current price for one
// instrument, preferring the live aggregator and falling back to the market
// data provider when local history is still thin.
func (e *Engine) candleContext(ctx context.Context, instrument string) ([]models.Candle, decimal.Decimal, error) {
	widthSeconds := int64(config.Duration(e.cfg.Engine.CandleWidth) / time.Second)

	var candles []models.Candle
	var price decimal.Decimal

	if aggregator, ok := e.aggregators[instrument]; ok {
		candles = aggregator.History()
		if current := aggregator.Current(); current != nil {
			price = current.Close
		}
	}

	if len(candles) < bollingerPeriod {
		fetched, err := e.marketData.GetRecentCandles(ctx, instrument, widthSeconds, e.cfg.Engine.CandleHistoryCap)
		if err != nil {
			e.logger.WithError(err).WithField("instrument", instrument).Warn("Candle backfill unavailable")
		} else if len(fetched) > len(candles) {
			candles = fetched
		}
	}

	if price.IsZero() {
		fetched, err := e.marketData.GetCurrentPrice(ctx, instrument)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("no current price for %s: %w", instrument, err)
		}
		price = fetched
	}

	return candles, price, nil
}

// verifyDue resolves pending predictions past their age requirement and
// feeds the verified outcomes into the adaptation engine. The fast path
// honors only the configured age floor; the long-horizon path additionally
// waits out each prediction's full timeframe duration. Re-running over an
// already-resolved prediction is a no-op guarded by the pending-status check.
func (e *Engine) verifyDue(ctx context.Context, fast bool) {
	ageFloor := config.Duration(e.cfg.Engine.VerifyAgeFloor)
	now := time.Now().UTC()

	due, err := e.predictionRepo.ListDuePending(ctx, now.Add(-ageFloor))
	if err != nil {
		e.logger.WithError(err).Error("Failed to list due predictions")
		return
	}

	for _, prediction := range due {
		if !fast {
			horizon, err := time.ParseDuration(prediction.Timeframe)
			if err == nil && now.Sub(prediction.CreatedAt) < horizon {
				continue
			}
		}

		exitPrice, err := e.marketData.GetCurrentPrice(ctx, prediction.Instrument)
		if err != nil {
			e.logger.WithError(err).WithField("instrument", prediction.Instrument).Warn("Skipping verification without exit price")
			continue
		}

		e.verifier.Verify(prediction, exitPrice)
		if err := e.predictionRepo.Resolve(ctx, prediction); err != nil {
			if errors.Is(err, database.ErrAlreadyResolved) {
				// Another scheduler won the race; learning must not run twice.
				continue
			}
			e.logger.WithError(err).WithField("prediction", prediction.ID).Error("Failed to resolve prediction")
			continue
		}

		snapshot := e.applyLearning(prediction)
		if snapshot == nil {
			continue
		}

		if err := e.expertRepo.UpsertProfile(ctx, snapshot); err != nil {
			e.logger.WithError(err).WithField("expert", snapshot.ID).Error("Failed to persist adapted profile")
		}
	}
}

// applyLearning feeds one resolved prediction into the canonical profile
// under the panel lock and returns a snapshot safe to persist outside it.
// Returns nil when the expert is no longer in the panel.
func (e *Engine) applyLearning(prediction *models.Prediction) *models.ExpertProfile {
	e.mu.Lock()
	defer e.mu.Unlock()

	profile, ok := e.profiles[prediction.ExpertID]
	if !ok {
		return nil
	}
	e.adaptation.Learn(profile, prediction, prediction.Status == models.PredictionSuccess)
	return profile.Clone()
}

// SaveAggregatorState snapshots every aggregator into redis so a restarted
// process resumes with identical behavior.
func (e *Engine) SaveAggregatorState(ctx context.Context) {
	for instrument, aggregator := range e.aggregators {
		data, err := aggregator.MarshalState()
		if err != nil {
			e.logger.WithError(err).WithField("instrument", instrument).Error("Failed to snapshot aggregator")
			continue
		}
		if err := e.redis.Set(ctx, aggregatorStateKeyPrefix+instrument, string(data), 0); err != nil {
			e.logger.WithError(err).WithField("instrument", instrument).Error("Failed to store aggregator snapshot")
		}
	}
}

// RestoreAggregatorState rebuilds aggregators from redis snapshots where
// present. Missing snapshots are not an error; the aggregator starts cold.
func (e *Engine) RestoreAggregatorState(ctx context.Context) {
	for instrument, aggregator := range e.aggregators {
		data, err := e.redis.Get(ctx, aggregatorStateKeyPrefix+instrument)
		if err != nil {
			continue
		}
		if err := aggregator.RestoreState([]byte(data)); err != nil {
			e.logger.WithError(err).WithField("instrument", instrument).Warn("Discarding invalid aggregator snapshot")
		}
	}
}
