package database

import (
	"context"
	"fmt"

	"github.com/ensembot/ensembot/internal/models"
)

// PositionRepository persists simulated positions. The open path is a guarded
// insert so the single-open-position invariant survives concurrent cycles.
type PositionRepository struct {
	pool DatabasePool
}

// NewPositionRepository creates a new position repository.
func NewPositionRepository(pool DatabasePool) *PositionRepository {
	return &PositionRepository{pool: pool}
}

// Open inserts a new open position unless one is already open for the same
// (expert, instrument). The NOT EXISTS guard runs in the same statement, so
// two racing schedulers cannot both succeed.
func (r *PositionRepository) Open(ctx context.Context, p *models.TradingPosition) error {
	query := `
		INSERT INTO trading_positions
			(id, expert_id, instrument, direction, entry_time, entry_price, entry_confidence, highest_profit_seen, status, balance_before)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		WHERE NOT EXISTS (
			SELECT 1 FROM trading_positions
			WHERE expert_id = $2 AND instrument = $3 AND status = 'open'
		)
	`
	tag, err := r.pool.Exec(ctx, query,
		p.ID, p.ExpertID, p.Instrument, string(p.Direction), p.EntryTime,
		p.EntryPrice, p.EntryConfidence, p.HighestProfitSeen, string(p.Status), p.BalanceBefore,
	)
	if err != nil {
		return fmt.Errorf("failed to open position: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOpenPositionExists
	}
	return nil
}

// ListOpen returns every open position across all experts and instruments.
func (r *PositionRepository) ListOpen(ctx context.Context) ([]*models.TradingPosition, error) {
	query := `
		SELECT id, expert_id, instrument, direction, entry_time, entry_price, entry_confidence, highest_profit_seen, status, balance_before
		FROM trading_positions
		WHERE status = 'open'
		ORDER BY entry_time
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list open positions: %w", err)
	}
	defer rows.Close()

	var positions []*models.TradingPosition
	for rows.Next() {
		var p models.TradingPosition
		var direction, status string
		if err := rows.Scan(&p.ID, &p.ExpertID, &p.Instrument, &direction, &p.EntryTime,
			&p.EntryPrice, &p.EntryConfidence, &p.HighestProfitSeen, &status, &p.BalanceBefore); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		p.Direction = models.Direction(direction)
		p.Status = models.PositionStatus(status)
		positions = append(positions, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return positions, nil
}

// UpdatePeak persists a new highest-profit watermark for an open position.
func (r *PositionRepository) UpdatePeak(ctx context.Context, id string, highestProfitSeen float64) error {
	query := `UPDATE trading_positions SET highest_profit_seen = $2 WHERE id = $1 AND status = 'open'`
	if _, err := r.pool.Exec(ctx, query, id, highestProfitSeen); err != nil {
		return fmt.Errorf("failed to update position peak: %w", err)
	}
	return nil
}

// Close finalizes a position. The status guard keeps a double close from
// rewriting an already-closed row.
func (r *PositionRepository) Close(ctx context.Context, p *models.TradingPosition) error {
	query := `
		UPDATE trading_positions
		SET status = $2, exit_time = $3, exit_price = $4, exit_reason = $5,
			hold_minutes = $6, leveraged_profit_percent = $7, profit_amount = $8, balance_after = $9
		WHERE id = $1 AND status = 'open'
	`
	tag, err := r.pool.Exec(ctx, query, p.ID, string(p.Status), p.ExitTime, p.ExitPrice,
		p.ExitReason, p.HoldMinutes, p.LeveragedProfitPercent, p.ProfitAmount, p.BalanceAfter)
	if err != nil {
		return fmt.Errorf("failed to close position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
