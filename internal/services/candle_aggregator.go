package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ensembot/ensembot/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// AggregatorLifecycle models the feed-attachment state of one aggregator
// instance, replacing hidden process-global initialization flags.
type AggregatorLifecycle string

const (
	LifecycleUninitialized AggregatorLifecycle = "uninitialized"
	LifecycleConnecting    AggregatorLifecycle = "connecting"
	LifecycleConnected     AggregatorLifecycle = "connected"
)

const (
	// smartTriggerCooldown bounds how often the early-evaluation check runs.
	smartTriggerCooldown = 5 * time.Second

	// volumeSpikeFactor fires the trigger when running volume reaches this
	// multiple of the volume seen at the previous trigger check.
	volumeSpikeFactor = 2.0

	// priceJumpThreshold fires the trigger when price moves this fraction
	// away from the in-progress candle's open.
	priceJumpThreshold = 0.01
)

// IngestResult reports what a single tick did to the aggregator.
type IngestResult struct {
	CandleClosed bool
	EvaluateNow  bool
	Reason       string
	// Closed is the candle that was finalized by this tick, if any.
	Closed *models.Candle
}

// CandleAggregator folds a strictly ordered tick stream for one instrument
// into fixed-width OHLCV candles. Closed candles land in a bounded history,
// oldest evicted first. A smart trigger can request early downstream
// evaluation on a volume spike or price jump without waiting for a close.
type CandleAggregator struct {
	instrument string
	width      time.Duration
	historyCap int
	logger     *logrus.Logger

	mu        sync.Mutex
	lifecycle AggregatorLifecycle
	current   *models.Candle
	history   []models.Candle

	lastCheckAt     time.Time
	lastCheckVolume decimal.Decimal
}

// aggregatorState is the serialized form of an aggregator. Restoring it
// reproduces identical future behavior.
type aggregatorState struct {
	Instrument      string          `json:"instrument"`
	WidthSeconds    int64           `json:"width_seconds"`
	HistoryCap      int             `json:"history_cap"`
	Lifecycle       string          `json:"lifecycle"`
	Current         *models.Candle  `json:"current,omitempty"`
	History         []models.Candle `json:"history"`
	LastCheckAtMs   int64           `json:"last_check_at_ms"`
	LastCheckVolume decimal.Decimal `json:"last_check_volume"`
}

// NewCandleAggregator creates an aggregator for one instrument.
func NewCandleAggregator(instrument string, width time.Duration, historyCap int, logger *logrus.Logger) *CandleAggregator {
	return &CandleAggregator{
		instrument: instrument,
		width:      width,
		historyCap: historyCap,
		logger:     logger,
		lifecycle:  LifecycleUninitialized,
	}
}

// Instrument returns the instrument this aggregator owns.
func (a *CandleAggregator) Instrument() string { return a.instrument }

// Lifecycle returns the current feed-attachment state.
func (a *CandleAggregator) Lifecycle() AggregatorLifecycle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lifecycle
}

// SetLifecycle transitions the feed-attachment state.
func (a *CandleAggregator) SetLifecycle(state AggregatorLifecycle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lifecycle = state
}

// Ingest folds one tick into the aggregator. A tick belonging to a new
// interval bucket closes the in-progress candle, which always triggers
// downstream evaluation. Otherwise the smart trigger may request early
// evaluation, at most once per cooldown window.
func (a *CandleAggregator) Ingest(tick models.Tick) IngestResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	widthSeconds := int64(a.width / time.Second)
	intervalStart := (tick.Timestamp / 1000) / widthSeconds * widthSeconds

	if a.current == nil {
		candle := models.NewCandleFromTick(tick, intervalStart)
		a.current = &candle
		a.lastCheckAt = tick.Time()
		a.lastCheckVolume = tick.Volume
		return IngestResult{}
	}

	if intervalStart > a.current.IntervalStart {
		closed := *a.current
		a.pushHistory(closed)

		candle := models.NewCandleFromTick(tick, intervalStart)
		a.current = &candle
		a.lastCheckAt = tick.Time()
		a.lastCheckVolume = tick.Volume

		a.logger.WithFields(logrus.Fields{
			"instrument":     a.instrument,
			"interval_start": closed.IntervalStart,
			"close":          closed.Close,
			"volume":         closed.Volume,
		}).Debug("Candle closed")

		return IngestResult{
			CandleClosed: true,
			EvaluateNow:  true,
			Reason:       "candle_closed",
			Closed:       &closed,
		}
	}

	a.current.ApplyTick(tick)
	return a.checkSmartTrigger(tick)
}

// checkSmartTrigger runs the early-evaluation check if the cooldown has
// elapsed. The running volume is snapshotted at every check so the spike
// comparison is always against the previous check, fired or not.
func (a *CandleAggregator) checkSmartTrigger(tick models.Tick) IngestResult {
	now := tick.Time()
	if now.Sub(a.lastCheckAt) < smartTriggerCooldown {
		return IngestResult{}
	}

	prevVolume := a.lastCheckVolume
	a.lastCheckAt = now
	a.lastCheckVolume = a.current.Volume

	open, _ := a.current.Open.Float64()
	price, _ := tick.Price.Float64()

	if prevVolume.IsPositive() {
		threshold := prevVolume.Mul(decimal.NewFromFloat(volumeSpikeFactor))
		if a.current.Volume.GreaterThanOrEqual(threshold) {
			return IngestResult{EvaluateNow: true, Reason: "volume_spike"}
		}
	}

	if open > 0 {
		move := price - open
		if move < 0 {
			move = -move
		}
		if move/open >= priceJumpThreshold {
			return IngestResult{EvaluateNow: true, Reason: "price_jump"}
		}
	}

	return IngestResult{}
}

func (a *CandleAggregator) pushHistory(candle models.Candle) {
	a.history = append(a.history, candle)
	if len(a.history) > a.historyCap {
		a.history = a.history[len(a.history)-a.historyCap:]
	}
}

// History returns a copy of the closed-candle buffer, oldest first.
func (a *CandleAggregator) History() []models.Candle {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]models.Candle, len(a.history))
	copy(out, a.history)
	return out
}

// Current returns a snapshot of the in-progress candle, or nil before the
// first tick.
func (a *CandleAggregator) Current() *models.Candle {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return nil
	}
	c := *a.current
	return &c
}

// MarshalState serializes the aggregator for restart recovery.
func (a *CandleAggregator) MarshalState() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	state := aggregatorState{
		Instrument:      a.instrument,
		WidthSeconds:    int64(a.width / time.Second),
		HistoryCap:      a.historyCap,
		Lifecycle:       string(a.lifecycle),
		Current:         a.current,
		History:         a.history,
		LastCheckAtMs:   a.lastCheckAt.UnixMilli(),
		LastCheckVolume: a.lastCheckVolume,
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal aggregator state: %w", err)
	}
	return data, nil
}

// RestoreState rebuilds the aggregator from a serialized snapshot. The
// restored instance behaves identically to the one that produced it.
func (a *CandleAggregator) RestoreState(data []byte) error {
	var state aggregatorState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to unmarshal aggregator state: %w", err)
	}
	if state.Instrument != a.instrument {
		return fmt.Errorf("state instrument %q does not match aggregator %q", state.Instrument, a.instrument)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.width = time.Duration(state.WidthSeconds) * time.Second
	a.historyCap = state.HistoryCap
	a.lifecycle = AggregatorLifecycle(state.Lifecycle)
	a.current = state.Current
	a.history = state.History
	a.lastCheckAt = time.UnixMilli(state.LastCheckAtMs)
	a.lastCheckVolume = state.LastCheckVolume
	return nil
}
