package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zapfit/server/internal/model"
)

// VerificationRepo defines the interface for verification record storage.
type VerificationRepo interface {
	Upsert(ctx context.Context, rec *model.VerificationRecord) error
	GetByWorkoutID(ctx context.Context, workoutID string) (*model.VerificationRecord, error)
	ConsumeCode(ctx context.Context, workoutID, code string) (bool, error)
}

type verificationRepo struct {
	db *sql.DB
}

// NewVerificationRepo creates a Postgres-backed VerificationRepo.
func NewVerificationRepo(db *sql.DB) VerificationRepo {
	return &verificationRepo{db: db}
}

// Upsert inserts or refreshes the record for a workout. A re-request before
// the code is used replaces code, hash and expiry; the used flag resets with
// the new code since the old one can no longer match.
func (r *verificationRepo) Upsert(ctx context.Context, rec *model.VerificationRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO verification_records (workout_id, npub, canonical_hash, code, created_at, expires_at, used)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		ON CONFLICT (workout_id) DO UPDATE
		SET npub = EXCLUDED.npub,
		    canonical_hash = EXCLUDED.canonical_hash,
		    code = EXCLUDED.code,
		    created_at = EXCLUDED.created_at,
		    expires_at = EXCLUDED.expires_at,
		    used = FALSE
		WHERE verification_records.used = FALSE
	`, rec.WorkoutID, rec.Npub, rec.CanonicalHash, rec.Code, rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("upsert verification record: %w", err)
	}
	return nil
}

// GetByWorkoutID returns the record for a workout, or ErrNotFound.
func (r *verificationRepo) GetByWorkoutID(ctx context.Context, workoutID string) (*model.VerificationRecord, error) {
	var rec model.VerificationRecord
	err := r.db.QueryRowContext(ctx, `
		SELECT workout_id, npub, canonical_hash, code, created_at, expires_at, used
		FROM verification_records
		WHERE workout_id = $1
	`, workoutID).Scan(
		&rec.WorkoutID,
		&rec.Npub,
		&rec.CanonicalHash,
		&rec.Code,
		&rec.CreatedAt,
		&rec.ExpiresAt,
		&rec.Used,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query verification record: %w", err)
	}
	return &rec, nil
}

// ConsumeCode flips used=true in a single conditional update so the
// check-then-set race collapses to one atomic statement. Returns false when
// the code was already used, expired or does not match.
func (r *verificationRepo) ConsumeCode(ctx context.Context, workoutID, code string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE verification_records
		SET used = TRUE
		WHERE workout_id = $1 AND code = $2 AND used = FALSE AND expires_at > now()
	`, workoutID, code)
	if err != nil {
		return false, fmt.Errorf("consume verification code: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume verification code: rows affected: %w", err)
	}
	return n == 1, nil
}
