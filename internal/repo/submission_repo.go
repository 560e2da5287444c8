package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/zapfit/server/internal/model"
)

// SubmissionRepo defines the interface for workout submission storage,
// covering both accepted and flagged rows.
type SubmissionRepo interface {
	ExistsEventID(ctx context.Context, eventID string) (bool, error)
	HasOverlapping(ctx context.Context, npub string, start, end time.Time, lookback time.Duration) (bool, error)
	InsertSubmission(ctx context.Context, sub *model.WorkoutSubmission) error
	InsertFlagged(ctx context.Context, flagged *model.FlaggedWorkout) error
	LeaderboardForDate(ctx context.Context, date string, limit int) ([]model.WorkoutSubmission, error)
}

type submissionRepo struct {
	db *sql.DB
}

// NewSubmissionRepo creates a Postgres-backed SubmissionRepo.
func NewSubmissionRepo(db *sql.DB) SubmissionRepo {
	return &submissionRepo{db: db}
}

// ExistsEventID reports whether an event id was already accepted or flagged.
func (r *submissionRepo) ExistsEventID(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM workout_submissions WHERE event_id = $1)
		    OR EXISTS (SELECT 1 FROM flagged_workouts WHERE event_id = $1)
	`, eventID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check event id: %w", err)
	}
	return exists, nil
}

// HasOverlapping reports whether the npub has an accepted submission whose
// [started_at, started_at+duration) interval intersects [start, end) within
// the lookback window.
func (r *submissionRepo) HasOverlapping(ctx context.Context, npub string, start, end time.Time, lookback time.Duration) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM workout_submissions
			WHERE npub = $1
			  AND started_at >= $2
			  AND started_at < $4
			  AND started_at + (duration_seconds * interval '1 second') > $3
		)
	`, npub, start.Add(-lookback), start, end).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check overlapping submissions: %w", err)
	}
	return exists, nil
}

// InsertSubmission persists an accepted workout. Rows are write-once; a
// unique violation on event_id returns ErrDuplicate.
func (r *submissionRepo) InsertSubmission(ctx context.Context, sub *model.WorkoutSubmission) error {
	splits, err := marshalSplits(sub.Splits)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workout_submissions (
			event_id, npub, raw_activity_type, activity_type,
			distance_meters, duration_seconds, started_at, splits,
			time_5k, time_10k, time_half, time_marathon, step_count,
			leaderboard_date, verification_status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`,
		sub.EventID, sub.Npub, sub.RawActivityType, sub.ActivityType,
		sub.DistanceMeters, sub.DurationSeconds, sub.StartedAt, splits,
		sub.Time5K, sub.Time10K, sub.TimeHalf, sub.TimeMarathon, sub.StepCount,
		sub.LeaderboardDate, string(sub.VerificationStatus), sub.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// InsertFlagged persists a plausibility rejection. A unique violation on
// event_id returns ErrDuplicate.
func (r *submissionRepo) InsertFlagged(ctx context.Context, flagged *model.FlaggedWorkout) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO flagged_workouts (id, event_id, npub, activity_type, distance_meters, duration_seconds, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		flagged.ID, flagged.EventID, flagged.Npub, flagged.ActivityType,
		flagged.DistanceMeters, flagged.DurationSeconds, flagged.Reason, flagged.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert flagged workout: %w", err)
	}
	return nil
}

// LeaderboardForDate returns eligible submissions (verified or legacy) for a
// UTC date ordered by distance.
func (r *submissionRepo) LeaderboardForDate(ctx context.Context, date string, limit int) ([]model.WorkoutSubmission, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_id, npub, raw_activity_type, activity_type,
		       distance_meters, duration_seconds, started_at, splits,
		       time_5k, time_10k, time_half, time_marathon, step_count,
		       leaderboard_date, verification_status, created_at
		FROM workout_submissions
		WHERE leaderboard_date = $1
		  AND verification_status IN ('verified', 'legacy')
		ORDER BY distance_meters DESC
		LIMIT $2
	`, date, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var subs []model.WorkoutSubmission
	for rows.Next() {
		var sub model.WorkoutSubmission
		var splits []byte
		var status string
		if err := rows.Scan(
			&sub.EventID, &sub.Npub, &sub.RawActivityType, &sub.ActivityType,
			&sub.DistanceMeters, &sub.DurationSeconds, &sub.StartedAt, &splits,
			&sub.Time5K, &sub.Time10K, &sub.TimeHalf, &sub.TimeMarathon, &sub.StepCount,
			&sub.LeaderboardDate, &status, &sub.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		sub.VerificationStatus = model.VerificationStatus(status)
		if sub.Splits, err = unmarshalSplits(splits); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// marshalSplits encodes the km->seconds map as JSONB with string keys.
func marshalSplits(splits map[float64]int64) ([]byte, error) {
	m := make(map[string]int64, len(splits))
	for km, secs := range splits {
		m[strconv.FormatFloat(km, 'f', -1, 64)] = secs
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal splits: %w", err)
	}
	return b, nil
}

func unmarshalSplits(data []byte) (map[float64]int64, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var m map[string]int64
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal splits: %w", err)
	}
	splits := make(map[float64]int64, len(m))
	for k, v := range m {
		km, err := strconv.ParseFloat(k, 64)
		if err != nil {
			return nil, fmt.Errorf("unmarshal splits: bad key %q", k)
		}
		splits[km] = v
	}
	return splits, nil
}
