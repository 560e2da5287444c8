package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zapfit/server/internal/model"
)

// ClaimRepo defines the interface for daily reward claim storage. The unique
// (address_hash, reward_date) constraint is the real mutual-exclusion
// backstop between concurrent invocations.
type ClaimRepo interface {
	GetForDay(ctx context.Context, addressHash, rewardDate string) (*model.DailyRewardClaim, error)
	MarkWorkoutClaimed(ctx context.Context, addressHash, rewardDate string) error
	AddStepSats(ctx context.Context, addressHash, rewardDate string, sats int) error
}

type claimRepo struct {
	db *sql.DB
}

// NewClaimRepo creates a Postgres-backed ClaimRepo.
func NewClaimRepo(db *sql.DB) ClaimRepo {
	return &claimRepo{db: db}
}

// GetForDay returns the claim row for (addressHash, rewardDate), or
// ErrNotFound when the address has claimed nothing that day.
func (r *claimRepo) GetForDay(ctx context.Context, addressHash, rewardDate string) (*model.DailyRewardClaim, error) {
	var claim model.DailyRewardClaim
	err := r.db.QueryRowContext(ctx, `
		SELECT address_hash, reward_date, workout_claimed, step_sats_claimed, updated_at
		FROM daily_reward_claims
		WHERE address_hash = $1 AND reward_date = $2
	`, addressHash, rewardDate).Scan(
		&claim.AddressHash,
		&claim.RewardDate,
		&claim.WorkoutClaimed,
		&claim.StepSatsClaimed,
		&claim.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query daily claim: %w", err)
	}
	return &claim, nil
}

// MarkWorkoutClaimed records the one workout payout of the day. An existing
// row is updated in place; a concurrent duplicate insert is idempotent.
func (r *claimRepo) MarkWorkoutClaimed(ctx context.Context, addressHash, rewardDate string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO daily_reward_claims (address_hash, reward_date, workout_claimed, updated_at)
		VALUES ($1, $2, TRUE, now())
		ON CONFLICT (address_hash, reward_date) DO UPDATE
		SET workout_claimed = TRUE, updated_at = now()
	`, addressHash, rewardDate)
	if err != nil {
		return fmt.Errorf("mark workout claimed: %w", err)
	}
	return nil
}

// AddStepSats adds a paid step reward to the daily total, clamped at the cap
// by the table's CHECK constraint. LEAST keeps a concurrent double-credit
// from exceeding the cap rather than failing the insert.
func (r *claimRepo) AddStepSats(ctx context.Context, addressHash, rewardDate string, sats int) error {
	if sats <= 0 {
		return fmt.Errorf("step sats must be positive, got %d", sats)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO daily_reward_claims (address_hash, reward_date, step_sats_claimed, updated_at)
		VALUES ($1, $2, LEAST($3, 50), now())
		ON CONFLICT (address_hash, reward_date) DO UPDATE
		SET step_sats_claimed = LEAST(daily_reward_claims.step_sats_claimed + $3, 50),
		    updated_at = now()
	`, addressHash, rewardDate, sats)
	if err != nil {
		return fmt.Errorf("add step sats: %w", err)
	}
	return nil
}
