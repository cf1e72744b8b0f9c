package database

import (
	"context"
	"fmt"

	"github.com/ensembot/ensembot/internal/models"
	"github.com/shopspring/decimal"
)

// BalanceRepository persists the per-(expert, instrument) account rows.
type BalanceRepository struct {
	pool DatabasePool
}

// NewBalanceRepository creates a new balance repository.
func NewBalanceRepository(pool DatabasePool) *BalanceRepository {
	return &BalanceRepository{pool: pool}
}

// GetOrCreate loads an account row, seeding one at the starting balance when
// none exists yet.
func (r *BalanceRepository) GetOrCreate(ctx context.Context, expertID, instrument string, startingBalance decimal.Decimal) (*models.TraderBalance, error) {
	query := `
		INSERT INTO trader_balances (expert_id, instrument, current_balance, peak_balance, status)
		VALUES ($1, $2, $3, $3, 'active')
		ON CONFLICT (expert_id, instrument) DO UPDATE SET expert_id = EXCLUDED.expert_id
		RETURNING expert_id, instrument, current_balance, peak_balance, daily_profit_percent, daily_loss_limit_hit, status,
			total_trades, winning_trades, losing_trades, current_streak, best_streak, worst_streak,
			best_trade_percent, worst_trade_percent, cumulative_profit, win_rate
	`
	var b models.TraderBalance
	var status string
	err := r.pool.QueryRow(ctx, query, expertID, instrument, startingBalance).Scan(
		&b.ExpertID, &b.Instrument, &b.CurrentBalance, &b.PeakBalance,
		&b.DailyProfitPercent, &b.DailyLossLimitHit, &status,
		&b.TotalTrades, &b.WinningTrades, &b.LosingTrades,
		&b.CurrentStreak, &b.BestStreak, &b.WorstStreak,
		&b.BestTradePercent, &b.WorstTradePercent, &b.CumulativeProfit, &b.WinRate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create balance for %s/%s: %w", expertID, instrument, err)
	}
	b.Status = models.AccountStatus(status)
	return &b, nil
}

// Update writes the full mutable state of an account row. Callers hold the
// row from GetOrCreate within the same cycle; cross-scheduler races settle on
// the last writer, which is acceptable for simulated balances.
func (r *BalanceRepository) Update(ctx context.Context, b *models.TraderBalance) error {
	query := `
		UPDATE trader_balances
		SET current_balance = $3, peak_balance = $4, daily_profit_percent = $5, daily_loss_limit_hit = $6, status = $7,
			total_trades = $8, winning_trades = $9, losing_trades = $10,
			current_streak = $11, best_streak = $12, worst_streak = $13,
			best_trade_percent = $14, worst_trade_percent = $15, cumulative_profit = $16, win_rate = $17,
			updated_at = CURRENT_TIMESTAMP
		WHERE expert_id = $1 AND instrument = $2
	`
	tag, err := r.pool.Exec(ctx, query,
		b.ExpertID, b.Instrument, b.CurrentBalance, b.PeakBalance,
		b.DailyProfitPercent, b.DailyLossLimitHit, string(b.Status),
		b.TotalTrades, b.WinningTrades, b.LosingTrades,
		b.CurrentStreak, b.BestStreak, b.WorstStreak,
		b.BestTradePercent, b.WorstTradePercent, b.CumulativeProfit, b.WinRate,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance for %s/%s: %w", b.ExpertID, b.Instrument, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetDaily clears the daily profit tracking and reactivates accounts that
// were paused by the daily loss limit. Stopped accounts stay stopped.
func (r *BalanceRepository) ResetDaily(ctx context.Context) error {
	query := `
		UPDATE trader_balances
		SET daily_profit_percent = 0, daily_loss_limit_hit = false,
			status = CASE WHEN status = 'paused' THEN 'active' ELSE status END,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := r.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to reset daily balances: %w", err)
	}
	return nil
}
