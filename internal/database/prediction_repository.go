package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ensembot/ensembot/internal/models"
	"github.com/jackc/pgx/v5"
)

// PredictionRepository is the append-only store for predictions. Rows are
// inserted pending and resolved exactly once by verification.
type PredictionRepository struct {
	pool DatabasePool
}

// NewPredictionRepository creates a new prediction repository.
func NewPredictionRepository(pool DatabasePool) *PredictionRepository {
	return &PredictionRepository{pool: pool}
}

// Insert appends a new pending prediction.
func (r *PredictionRepository) Insert(ctx context.Context, p *models.Prediction) error {
	contributions, err := json.Marshal(p.Contributions)
	if err != nil {
		return fmt.Errorf("failed to marshal contributions: %w", err)
	}

	query := `
		INSERT INTO predictions (id, expert_id, instrument, timeframe, signal, confidence, entry_price, status, contributions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	if _, err := r.pool.Exec(ctx, query,
		p.ID, p.ExpertID, p.Instrument, p.Timeframe, string(p.Signal),
		p.Confidence, p.EntryPrice, string(p.Status), contributions, p.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert prediction: %w", err)
	}
	return nil
}

// ListDuePending returns pending predictions created before the cutoff.
func (r *PredictionRepository) ListDuePending(ctx context.Context, cutoff time.Time) ([]*models.Prediction, error) {
	query := `
		SELECT id, expert_id, instrument, timeframe, signal, confidence, entry_price, status, contributions, created_at
		FROM predictions
		WHERE status = 'pending' AND created_at <= $1
		ORDER BY created_at
	`
	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list due predictions: %w", err)
	}
	defer rows.Close()
	return scanPredictions(rows)
}

// Resolve flips a pending prediction to its final status. The status guard in
// the WHERE clause makes re-running verification a no-op; callers get
// ErrAlreadyResolved so learning is never applied twice.
func (r *PredictionRepository) Resolve(ctx context.Context, p *models.Prediction) error {
	query := `
		UPDATE predictions
		SET status = $2, exit_price = $3, profit_percent = $4, checked_at = $5
		WHERE id = $1 AND status = 'pending'
	`
	tag, err := r.pool.Exec(ctx, query, p.ID, string(p.Status), p.ExitPrice, p.ProfitPercent, p.CheckedAt)
	if err != nil {
		return fmt.Errorf("failed to resolve prediction %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

// ListRecentResolved returns the most recently resolved predictions for an
// (expert, timeframe) pair, newest first. Used by the importance estimator.
func (r *PredictionRepository) ListRecentResolved(ctx context.Context, expertID, timeframe string, limit int) ([]*models.Prediction, error) {
	query := `
		SELECT id, expert_id, instrument, timeframe, signal, confidence, entry_price, status, contributions, created_at
		FROM predictions
		WHERE expert_id = $1 AND timeframe = $2 AND status <> 'pending'
		ORDER BY checked_at DESC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, expertID, timeframe, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list resolved predictions: %w", err)
	}
	defer rows.Close()
	return scanPredictions(rows)
}

func scanPredictions(rows pgx.Rows) ([]*models.Prediction, error) {
	var predictions []*models.Prediction
	for rows.Next() {
		var p models.Prediction
		var signal, status string
		var contributions []byte
		if err := rows.Scan(&p.ID, &p.ExpertID, &p.Instrument, &p.Timeframe, &signal,
			&p.Confidence, &p.EntryPrice, &status, &contributions, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		p.Signal = models.Direction(signal)
		p.Status = models.PredictionStatus(status)
		if len(contributions) > 0 {
			if err := json.Unmarshal(contributions, &p.Contributions); err != nil {
				return nil, fmt.Errorf("failed to unmarshal contributions for %s: %w", p.ID, err)
			}
		}
		predictions = append(predictions, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating predictions: %w", err)
	}
	return predictions, nil
}
