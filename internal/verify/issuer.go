package verify

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/zapfit/server/internal/logger"
	"github.com/zapfit/server/internal/model"
)

// CodeTTL is how long an issued code stays redeemable.
const CodeTTL = 5 * time.Minute

// ErrInvalidRequest marks caller-fixable validation failures; handlers map
// it to a 400.
var ErrInvalidRequest = errors.New("invalid request")

var npubPattern = regexp.MustCompile(`^npub1[a-z0-9]{58}$`)

// AllowedExercises is the fixed set of exercise types codes are issued for.
var AllowedExercises = map[string]bool{
	"running": true,
	"walking": true,
	"cycling": true,
	"hiking":  true,
}

// RecordStore persists verification records.
type RecordStore interface {
	Upsert(ctx context.Context, rec *model.VerificationRecord) error
}

// IssueRequest carries the immutable workout attributes a code is bound to.
type IssueRequest struct {
	Npub            string  `json:"npub"`
	WorkoutID       string  `json:"workout_id"`
	Exercise        string  `json:"exercise"`
	DistanceMeters  float64 `json:"distance_m"`
	DurationSeconds float64 `json:"duration_s"`
	StartTimestamp  float64 `json:"start_ts"`
	Version         string  `json:"version"`
}

// IssueResult is the issuer response. Code is nil for unsupported app
// versions so old clients are never blocked.
type IssueResult struct {
	Code      *string `json:"code"`
	ExpiresIn int     `json:"expires_in,omitempty"`
	Message   string  `json:"message,omitempty"`
}

// Issuer mints per-workout verification codes.
type Issuer struct {
	secrets map[string]string // version -> secret, immutable after startup
	records RecordStore
}

// NewIssuer creates an issuer over the version-secret map and record store.
func NewIssuer(secrets map[string]string, records RecordStore) *Issuer {
	return &Issuer{secrets: secrets, records: records}
}

// Issue validates the request, computes the code and upserts the
// verification record keyed by workout_id. Re-requesting before use
// refreshes the code and expiry.
func (i *Issuer) Issue(ctx context.Context, req *IssueRequest) (*IssueResult, error) {
	if !npubPattern.MatchString(req.Npub) {
		return nil, fmt.Errorf("%w: invalid npub", ErrInvalidRequest)
	}
	if req.WorkoutID == "" {
		return nil, fmt.Errorf("%w: workout_id is required", ErrInvalidRequest)
	}
	if !AllowedExercises[req.Exercise] {
		return nil, fmt.Errorf("%w: unsupported exercise type %q", ErrInvalidRequest, req.Exercise)
	}

	secret, ok := i.secrets[req.Version]
	if !ok {
		// Unknown app version is not an error: old clients keep working,
		// their submissions just stay unverified.
		logger.Debug("verification requested for unsupported version",
			zap.String("version", req.Version))
		return &IssueResult{Code: nil, Message: "unsupported app version"}, nil
	}

	distanceM := coerceNonNegative(req.DistanceMeters)
	durationS := coerceNonNegative(req.DurationSeconds)
	startTS := coerceNonNegative(req.StartTimestamp)

	canonical := CanonicalString(req.Npub, req.WorkoutID, req.Exercise, distanceM, durationS, startTS)
	code := Code(secret, canonical)

	now := time.Now().UTC()
	rec := &model.VerificationRecord{
		WorkoutID:     req.WorkoutID,
		Npub:          req.Npub,
		CanonicalHash: CanonicalHash(canonical),
		Code:          code,
		CreatedAt:     now,
		ExpiresAt:     now.Add(CodeTTL),
		Used:          false,
	}
	if err := i.records.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("store verification record: %w", err)
	}

	return &IssueResult{Code: &code, ExpiresIn: int(CodeTTL.Seconds())}, nil
}

// coerceNonNegative truncates to an integer and clamps negatives to zero,
// matching how clients serialize these fields.
func coerceNonNegative(v float64) int64 {
	if v < 0 {
		return 0
	}
	return int64(v)
}

// ValidNpub reports whether s has the expected npub shape.
func ValidNpub(s string) bool {
	return npubPattern.MatchString(s)
}
