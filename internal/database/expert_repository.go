package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ensembot/ensembot/internal/models"
)

// ExpertRepository persists expert profiles: weights, thresholds, and the
// rolling outcome windows, stored as JSONB keyed by expert id.
type ExpertRepository struct {
	pool DatabasePool
}

// NewExpertRepository creates a new expert repository.
func NewExpertRepository(pool DatabasePool) *ExpertRepository {
	return &ExpertRepository{pool: pool}
}

// UpsertProfile writes the full mutable state of a profile.
func (r *ExpertRepository) UpsertProfile(ctx context.Context, profile *models.ExpertProfile) error {
	weights, err := json.Marshal(profile.WeightsByTimeframe)
	if err != nil {
		return fmt.Errorf("failed to marshal weights: %w", err)
	}
	thresholds, err := json.Marshal(profile.ConfidenceThresholdByTimeframe)
	if err != nil {
		return fmt.Errorf("failed to marshal thresholds: %w", err)
	}
	outcomes, err := json.Marshal(profile.RecentOutcomesByTimeframe)
	if err != nil {
		return fmt.Errorf("failed to marshal outcomes: %w", err)
	}

	query := `
		INSERT INTO expert_profiles (id, display_name, strategy_label, weights, thresholds, outcomes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP)
		ON CONFLICT (id)
		DO UPDATE SET
			weights = EXCLUDED.weights,
			thresholds = EXCLUDED.thresholds,
			outcomes = EXCLUDED.outcomes,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := r.pool.Exec(ctx, query, profile.ID, profile.DisplayName, profile.StrategyLabel, weights, thresholds, outcomes); err != nil {
		return fmt.Errorf("failed to upsert expert profile %s: %w", profile.ID, err)
	}
	return nil
}

// ListProfiles loads every stored profile.
func (r *ExpertRepository) ListProfiles(ctx context.Context) ([]*models.ExpertProfile, error) {
	query := `
		SELECT id, display_name, strategy_label, weights, thresholds, outcomes
		FROM expert_profiles
		ORDER BY id
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list expert profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.ExpertProfile
	for rows.Next() {
		var p models.ExpertProfile
		var weights, thresholds, outcomes []byte
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.StrategyLabel, &weights, &thresholds, &outcomes); err != nil {
			return nil, fmt.Errorf("failed to scan expert profile: %w", err)
		}
		if err := json.Unmarshal(weights, &p.WeightsByTimeframe); err != nil {
			return nil, fmt.Errorf("failed to unmarshal weights for %s: %w", p.ID, err)
		}
		if err := json.Unmarshal(thresholds, &p.ConfidenceThresholdByTimeframe); err != nil {
			return nil, fmt.Errorf("failed to unmarshal thresholds for %s: %w", p.ID, err)
		}
		if err := json.Unmarshal(outcomes, &p.RecentOutcomesByTimeframe); err != nil {
			return nil, fmt.Errorf("failed to unmarshal outcomes for %s: %w", p.ID, err)
		}
		profiles = append(profiles, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating expert profiles: %w", err)
	}
	return profiles, nil
}
