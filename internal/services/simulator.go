package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ensembot/ensembot/internal/config"
	"github.com/ensembot/ensembot/internal/database"
	"github.com/ensembot/ensembot/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Entry rejection reasons surfaced by EvaluateEntry.
const (
	RejectPositionOpen   = "position already open"
	RejectAccountStatus  = "account not active"
	RejectBalanceTooLow  = "balance below minimum"
	RejectDailyLossLimit = "daily loss limit"
	RejectLowConfidence  = "confidence below entry floor"
	RejectNeutralSignal  = "neutral signal"
)

// TradingSimulator opens, tracks, and closes leveraged paper positions per
// expert. Entry and exit decisions for one (expert, instrument) are
// serialized through the position store's guarded writes.
type TradingSimulator struct {
	positions *database.PositionRepository
	balances  *database.BalanceRepository
	cfg       config.TradingConfig
	logger    *logrus.Logger
}

// NewTradingSimulator creates a new simulator.
func NewTradingSimulator(positions *database.PositionRepository, balances *database.BalanceRepository, cfg config.TradingConfig, logger *logrus.Logger) *TradingSimulator {
	return &TradingSimulator{
		positions: positions,
		balances:  balances,
		cfg:       cfg,
		logger:    logger,
	}
}

// leveragedProfit computes the signed leveraged profit percent for a
// position at the given price. The sign flips for shorts.
func (s *TradingSimulator) leveragedProfit(p *models.TradingPosition, price decimal.Decimal) float64 {
	entry, _ := p.EntryPrice.Float64()
	current, _ := price.Float64()
	if entry == 0 {
		return 0
	}
	priceChangePercent := (current - entry) / entry * 100
	if p.Direction == models.DirectionShort {
		priceChangePercent = -priceChangePercent
	}
	return priceChangePercent * s.cfg.Leverage
}

// EvaluateEntry opens a position for one expert prediction when every
// precondition holds. It returns the opened position, or a rejection reason
// when entry is not allowed. Rejections are expected outcomes, not errors.
func (s *TradingSimulator) EvaluateEntry(ctx context.Context, prediction *models.Prediction) (*models.TradingPosition, string, error) {
	if prediction.Signal == models.DirectionNeutral {
		return nil, RejectNeutralSignal, nil
	}
	if prediction.Confidence < s.cfg.EntryMinConfidence {
		return nil, RejectLowConfidence, nil
	}

	balance, err := s.balances.GetOrCreate(ctx, prediction.ExpertID, prediction.Instrument, decimal.NewFromFloat(s.cfg.StartingBalance))
	if err != nil {
		return nil, "", fmt.Errorf("failed to load balance: %w", err)
	}

	if balance.Status != models.AccountActive {
		return nil, RejectAccountStatus, nil
	}
	if balance.DailyLossLimitHit {
		return nil, RejectDailyLossLimit, nil
	}
	if balance.CurrentBalance.LessThan(decimal.NewFromFloat(s.cfg.MinBalance)) {
		return nil, RejectBalanceTooLow, nil
	}

	position := &models.TradingPosition{
		ID:              uuid.NewString(),
		ExpertID:        prediction.ExpertID,
		Instrument:      prediction.Instrument,
		Direction:       prediction.Signal,
		EntryTime:       time.Now().UTC(),
		EntryPrice:      prediction.EntryPrice,
		EntryConfidence: prediction.Confidence,
		Status:          models.PositionOpen,
		BalanceBefore:   balance.CurrentBalance,
	}

	if err := s.positions.Open(ctx, position); err != nil {
		if errors.Is(err, database.ErrOpenPositionExists) {
			return nil, RejectPositionOpen, nil
		}
		return nil, "", fmt.Errorf("failed to open position: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"expert":     position.ExpertID,
		"instrument": position.Instrument,
		"direction":  position.Direction,
		"entry":      position.EntryPrice,
		"confidence": position.EntryConfidence,
	}).Info("Opened paper position")

	return position, "", nil
}

// ManageOpenPositions walks every open position, refreshes its profit
// watermark, and applies the owning expert's exit policy plus the universal
// hold timeout. Experts' strategy labels come from the profiles map.
func (s *TradingSimulator) ManageOpenPositions(
	ctx context.Context,
	prices map[string]decimal.Decimal,
	signalsByInstrument map[string][]models.SignalReading,
	profiles map[string]*models.ExpertProfile,
	now time.Time,
) error {
	open, err := s.positions.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("failed to list open positions: %w", err)
	}

	for _, position := range open {
		price, ok := prices[position.Instrument]
		if !ok {
			continue
		}

		profit := s.leveragedProfit(position, price)
		if profit > position.HighestProfitSeen {
			position.HighestProfitSeen = profit
			if err := s.positions.UpdatePeak(ctx, position.ID, profit); err != nil {
				s.logger.WithError(err).WithField("position", position.ID).Warn("Failed to persist profit watermark")
			}
		}

		holdMinutes := position.HeldFor(now).Minutes()
		decision := ExitDecision{}
		if holdMinutes >= float64(s.cfg.MaxHoldMinutes) {
			decision = ExitDecision{Exit: true, Reason: "max hold timeout"}
		} else {
			strategy := defaultExit
			if profile, ok := profiles[position.ExpertID]; ok {
				strategy = ExitStrategyFor(profile.StrategyLabel)
			}
			decision = strategy(ExitContext{
				Position:        position,
				LeveragedProfit: profit,
				HighestProfit:   position.HighestProfitSeen,
				HoldMinutes:     holdMinutes,
				Signals:         signalsByInstrument[position.Instrument],
			})
		}

		if !decision.Exit {
			continue
		}

		if err := s.closePosition(ctx, position, price, profit, decision.Reason, now); err != nil {
			// Per-position failures must not abort the sweep.
			s.logger.WithError(err).WithField("position", position.ID).Error("Failed to close position")
		}
	}
	return nil
}

// closePosition finalizes one position and folds the result into the
// account row, pausing the account when the daily loss limit trips.
func (s *TradingSimulator) closePosition(ctx context.Context, position *models.TradingPosition, price decimal.Decimal, profit float64, reason string, now time.Time) error {
	holdMinutes := position.HeldFor(now).Minutes()
	profitAmount := position.BalanceBefore.Mul(decimal.NewFromFloat(profit / 100))
	balanceAfter := position.BalanceBefore.Add(profitAmount)

	position.ExitTime = &now
	position.ExitPrice = &price
	position.ExitReason = reason
	position.HoldMinutes = &holdMinutes
	position.LeveragedProfitPercent = &profit
	position.ProfitAmount = &profitAmount
	position.BalanceAfter = &balanceAfter
	if profit >= 0 {
		position.Status = models.PositionClosedWin
	} else {
		position.Status = models.PositionClosedLoss
	}

	if err := s.positions.Close(ctx, position); err != nil {
		return err
	}

	balance, err := s.balances.GetOrCreate(ctx, position.ExpertID, position.Instrument, decimal.NewFromFloat(s.cfg.StartingBalance))
	if err != nil {
		return fmt.Errorf("failed to load balance for close-out: %w", err)
	}

	balance.CurrentBalance = balanceAfter
	if balanceAfter.GreaterThan(balance.PeakBalance) {
		balance.PeakBalance = balanceAfter
	}
	balance.RecordTrade(profit, profitAmount)
	balance.DailyProfitPercent += profit
	if balance.DailyProfitPercent <= s.cfg.DailyLossLimit {
		balance.Status = models.AccountPaused
		balance.DailyLossLimitHit = true
		s.logger.WithFields(logrus.Fields{
			"expert":       balance.ExpertID,
			"instrument":   balance.Instrument,
			"daily_profit": balance.DailyProfitPercent,
		}).Warn("Daily loss limit hit, pausing account")
	}

	if err := s.balances.Update(ctx, balance); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"expert":     position.ExpertID,
		"instrument": position.Instrument,
		"reason":     reason,
		"profit":     profit,
		"balance":    balanceAfter,
	}).Info("Closed paper position")

	return nil
}

// ResetDaily clears daily loss tracking across all accounts, reactivating
// any account paused by the limit.
func (s *TradingSimulator) ResetDaily(ctx context.Context) error {
	return s.balances.ResetDaily(ctx)
}
