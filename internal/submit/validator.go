package submit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zapfit/server/internal/logger"
	"github.com/zapfit/server/internal/model"
	"github.com/zapfit/server/internal/repo"
	"github.com/zapfit/server/internal/verify"
)

// overlapLookback bounds the window scanned for time-overlap duplicates.
const overlapLookback = 48 * time.Hour

// ErrMissingFields marks a submission without the required identifiers.
// Handlers map it to a 400; it is the caller's problem to fix.
var ErrMissingFields = errors.New("event_id and npub are required")

// Submission is the incoming workout payload, including the tagged event it
// was derived from.
type Submission struct {
	EventID          string   `json:"event_id"`
	Npub             string   `json:"npub"`
	ActivityType     string   `json:"activity_type"`
	DistanceMeters   float64  `json:"distance_meters"`
	DurationSeconds  int64    `json:"duration_seconds"`
	CreatedAt        int64    `json:"created_at"` // workout start, unix seconds
	WorkoutID        string   `json:"workout_id"`
	VerificationCode string   `json:"verification_code"`
	AppVersion       string   `json:"app_version"`
	RawEvent         RawEvent `json:"raw_event"`
}

// RawEvent carries the tag list of the submitted event.
type RawEvent struct {
	Tags [][]string `json:"tags"`
}

// Result is the structured pipeline outcome.
type Result struct {
	Success   bool                     `json:"success"`
	Duplicate bool                     `json:"duplicate,omitempty"`
	Flagged   bool                     `json:"flagged,omitempty"`
	Reason    string                   `json:"reason,omitempty"`
	Status    model.VerificationStatus `json:"verification_status,omitempty"`
}

// Validator runs the multi-stage submission pipeline: dedup, classification,
// plausibility, verification-code check, leaderboard precomputation and
// persistence. Every submission ends in exactly one of WorkoutSubmission or
// FlaggedWorkout.
type Validator struct {
	subs          repo.SubmissionRepo
	codes         repo.VerificationRepo
	secrets       map[string]string
	legacyEnabled bool
	now           func() time.Time
}

// NewValidator creates a validator over the stores and version-secret map.
func NewValidator(subs repo.SubmissionRepo, codes repo.VerificationRepo, secrets map[string]string, legacyEnabled bool) *Validator {
	return &Validator{
		subs:          subs,
		codes:         codes,
		secrets:       secrets,
		legacyEnabled: legacyEnabled,
		now:           time.Now,
	}
}

// Process runs the pipeline. Errors are storage faults only; every business
// outcome, including rejection, is a Result.
func (v *Validator) Process(ctx context.Context, sub *Submission) (*Result, error) {
	if sub.EventID == "" || sub.Npub == "" {
		return nil, ErrMissingFields
	}

	// Exact duplicate: already accepted or flagged. Idempotent success,
	// nothing is re-processed.
	exists, err := v.subs.ExistsEventID(ctx, sub.EventID)
	if err != nil {
		return nil, err
	}
	if exists {
		return &Result{Success: true, Duplicate: true}, nil
	}

	// Time-overlap duplicate against the npub's prior accepted submissions.
	start := time.Unix(sub.CreatedAt, 0).UTC()
	end := start.Add(time.Duration(sub.DurationSeconds) * time.Second)
	overlaps, err := v.subs.HasOverlapping(ctx, sub.Npub, start, end, overlapLookback)
	if err != nil {
		return nil, err
	}
	if overlaps {
		return &Result{Success: true, Duplicate: true}, nil
	}

	activityType := Classify(sub.ActivityType, sub.DistanceMeters, sub.DurationSeconds)

	if ok, reason := CheckPlausibility(activityType, sub.DistanceMeters, sub.DurationSeconds); !ok {
		flagged := &model.FlaggedWorkout{
			ID:              uuid.New(),
			EventID:         sub.EventID,
			Npub:            sub.Npub,
			ActivityType:    activityType,
			DistanceMeters:  sub.DistanceMeters,
			DurationSeconds: sub.DurationSeconds,
			Reason:          reason,
			CreatedAt:       v.now().UTC(),
		}
		if err := v.subs.InsertFlagged(ctx, flagged); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			return nil, err
		}
		logger.Info("submission flagged",
			zap.String("event_id", sub.EventID),
			zap.String("reason", reason))
		return &Result{Success: false, Flagged: true, Reason: reason}, nil
	}

	status, err := v.verificationStatus(ctx, sub)
	if err != nil {
		return nil, err
	}

	splits := ParseSplits(sub.RawEvent.Tags)
	time5k, time10k, timeHalf, timeMarathon := TargetTimes(splits, sub.DistanceMeters, sub.DurationSeconds)

	record := &model.WorkoutSubmission{
		EventID:            sub.EventID,
		Npub:               sub.Npub,
		RawActivityType:    sub.ActivityType,
		ActivityType:       activityType,
		DistanceMeters:     sub.DistanceMeters,
		DurationSeconds:    sub.DurationSeconds,
		StartedAt:          start,
		Splits:             splits,
		Time5K:             time5k,
		Time10K:            time10k,
		TimeHalf:           timeHalf,
		TimeMarathon:       timeMarathon,
		StepCount:          ParseStepCount(sub.RawEvent.Tags),
		LeaderboardDate:    start.Format("2006-01-02"),
		VerificationStatus: status,
		CreatedAt:          v.now().UTC(),
	}
	if err := v.subs.InsertSubmission(ctx, record); err != nil {
		// A concurrent duplicate insert lost the race; the row exists.
		if errors.Is(err, repo.ErrDuplicate) {
			return &Result{Success: true, Duplicate: true, Status: status}, nil
		}
		return nil, err
	}

	return &Result{Success: true, Status: status}, nil
}

// verificationStatus checks the submitted code against the record minted at
// issuance, falling back to the legacy per-user code. The status never blocks
// acceptance; it gates leaderboard eligibility and audit visibility.
func (v *Validator) verificationStatus(ctx context.Context, sub *Submission) (model.VerificationStatus, error) {
	if sub.WorkoutID != "" {
		rec, err := v.codes.GetByWorkoutID(ctx, sub.WorkoutID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return "", err
		}
		if rec != nil {
			return v.checkIssuedCode(ctx, sub, rec)
		}
	}
	return v.checkLegacyCode(sub), nil
}

func (v *Validator) checkIssuedCode(ctx context.Context, sub *Submission, rec *model.VerificationRecord) (model.VerificationStatus, error) {
	warn := func(status model.VerificationStatus) {
		logger.Warn("verification integrity violation",
			zap.String("event_id", sub.EventID),
			zap.String("workout_id", sub.WorkoutID),
			zap.String("status", string(status)))
	}

	if rec.Used {
		warn(model.StatusReplay)
		return model.StatusReplay, nil
	}
	if v.now().After(rec.ExpiresAt) {
		warn(model.StatusExpired)
		return model.StatusExpired, nil
	}
	if !verify.CodesEqual(sub.VerificationCode, rec.Code) {
		warn(model.StatusInvalid)
		return model.StatusInvalid, nil
	}

	// Recompute the canonical hash from the fields actually submitted; a
	// mismatch means the workout changed after the code was issued.
	canonical := verify.CanonicalString(
		sub.Npub, sub.WorkoutID, sub.ActivityType,
		coerceNonNegative(sub.DistanceMeters), coerceDuration(sub.DurationSeconds), sub.CreatedAt,
	)
	if verify.CanonicalHash(canonical) != rec.CanonicalHash {
		warn(model.StatusTampered)
		return model.StatusTampered, nil
	}

	// One atomic conditional update; losing the race to another submission
	// of the same workout means this one is the replay.
	consumed, err := v.codes.ConsumeCode(ctx, sub.WorkoutID, sub.VerificationCode)
	if err != nil {
		return "", err
	}
	if !consumed {
		warn(model.StatusReplay)
		return model.StatusReplay, nil
	}
	return model.StatusVerified, nil
}

func (v *Validator) checkLegacyCode(sub *Submission) model.VerificationStatus {
	if sub.VerificationCode == "" {
		return model.StatusUnverified
	}
	if !v.legacyEnabled {
		return model.StatusUnverified
	}
	secret, ok := v.secrets[sub.AppVersion]
	if !ok {
		return model.StatusUnverified
	}
	if verify.CodesEqual(sub.VerificationCode, verify.LegacyCode(secret, sub.Npub, sub.AppVersion)) {
		return model.StatusLegacy
	}
	logger.Warn("legacy code mismatch",
		zap.String("event_id", sub.EventID),
		zap.String("npub", sub.Npub))
	return model.StatusInvalid
}

func coerceNonNegative(v float64) int64 {
	if v < 0 {
		return 0
	}
	return int64(v)
}

func coerceDuration(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
