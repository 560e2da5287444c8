package reward

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zapfit/server/internal/logger"
	"github.com/zapfit/server/internal/model"
	"github.com/zapfit/server/internal/repo"
)

const (
	// WorkoutRewardSats is the fixed payout for the daily workout reward.
	WorkoutRewardSats = 50
	// DailyStepSatsCap caps cumulative step rewards per address per UTC day.
	DailyStepSatsCap = 50

	paymentComment = "zapfit reward"
)

// Reward types accepted by Claim.
const (
	TypeWorkout = "workout"
	TypeSteps   = "steps"
)

// ErrInvalidRequest marks caller-fixable validation failures; handlers map
// it to a 400.
var ErrInvalidRequest = errors.New("invalid request")

// Payer pays a bolt11 invoice and returns the preimage.
type Payer interface {
	PayInvoice(ctx context.Context, invoice string) (string, error)
}

// AddressResolver resolves a lightning address into an invoice for an exact
// sat amount.
type AddressResolver interface {
	ResolveAddress(ctx context.Context, address string, amountSats int64, comment string) (string, error)
}

// Result is the structured claim outcome. Reason is set for soft
// ineligibility (already claimed, cap reached); those are expected business
// outcomes, not failures.
type Result struct {
	Success       bool   `json:"success"`
	PaidSats      int    `json:"paid_sats"`
	RemainingSats int    `json:"remaining_sats"`
	Reason        string `json:"reason,omitempty"`
	Preimage      string `json:"preimage,omitempty"`
}

// Orchestrator rate-limits and pays rewards. All rate-limit state is keyed on
// the hashed lightning address; the address itself is never persisted.
type Orchestrator struct {
	payer    Payer
	resolver AddressResolver
	claims   repo.ClaimRepo
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(payer Payer, resolver AddressResolver, claims repo.ClaimRepo) *Orchestrator {
	return &Orchestrator{payer: payer, resolver: resolver, claims: claims, now: time.Now}
}

// HashAddress returns the persistence key for a lightning address:
// hex SHA-256 of the lowercased, trimmed address.
func HashAddress(address string) string {
	normalized := strings.ToLower(strings.TrimSpace(address))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Claim processes one reward claim. The claim is durably recorded only after
// the wallet returns a preimage; a failed payment records nothing so the
// caller can retry.
func (o *Orchestrator) Claim(ctx context.Context, address, rewardType string, amountSats int) (*Result, error) {
	if address == "" || !strings.Contains(address, "@") {
		return nil, fmt.Errorf("%w: a lightning address (name@domain) is required", ErrInvalidRequest)
	}

	addressHash := HashAddress(address)
	rewardDate := o.now().UTC().Format("2006-01-02")

	claim, err := o.claims.GetForDay(ctx, addressHash, rewardDate)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	if claim == nil {
		claim = &model.DailyRewardClaim{AddressHash: addressHash, RewardDate: rewardDate}
	}

	switch rewardType {
	case TypeWorkout:
		return o.claimWorkout(ctx, address, addressHash, rewardDate, claim)
	case TypeSteps:
		return o.claimSteps(ctx, address, addressHash, rewardDate, claim, amountSats)
	default:
		return nil, fmt.Errorf("%w: unknown reward type %q", ErrInvalidRequest, rewardType)
	}
}

// claimWorkout pays the one fixed workout reward per address per UTC day.
func (o *Orchestrator) claimWorkout(ctx context.Context, address, addressHash, rewardDate string, claim *model.DailyRewardClaim) (*Result, error) {
	if claim.WorkoutClaimed {
		return &Result{Success: true, Reason: "already_claimed"}, nil
	}

	preimage, err := o.pay(ctx, address, WorkoutRewardSats)
	if err != nil {
		return nil, err
	}

	if err := o.claims.MarkWorkoutClaimed(ctx, addressHash, rewardDate); err != nil {
		// The payment went through; surface the recording failure loudly
		// but do not pretend the claim failed.
		logger.Error("workout claim paid but not recorded",
			zap.String("address_hash", addressHash), zap.Error(err))
		return nil, err
	}

	return &Result{Success: true, PaidSats: WorkoutRewardSats, Preimage: preimage}, nil
}

// claimSteps pays up to the remaining daily allowance: min(requested,
// remaining), partial by design, never over the cap.
func (o *Orchestrator) claimSteps(ctx context.Context, address, addressHash, rewardDate string, claim *model.DailyRewardClaim, requestedSats int) (*Result, error) {
	if requestedSats <= 0 {
		return nil, fmt.Errorf("%w: amount_sats must be positive for step rewards", ErrInvalidRequest)
	}

	remaining := DailyStepSatsCap - claim.StepSatsClaimed
	if remaining <= 0 {
		return &Result{Success: true, Reason: "daily_cap_reached"}, nil
	}

	paySats := requestedSats
	if paySats > remaining {
		paySats = remaining
	}

	preimage, err := o.pay(ctx, address, int64(paySats))
	if err != nil {
		return nil, err
	}

	if err := o.claims.AddStepSats(ctx, addressHash, rewardDate, paySats); err != nil {
		logger.Error("step claim paid but not recorded",
			zap.String("address_hash", addressHash), zap.Error(err))
		return nil, err
	}

	return &Result{
		Success:       true,
		PaidSats:      paySats,
		RemainingSats: remaining - paySats,
		Preimage:      preimage,
	}, nil
}

// pay resolves an invoice for the exact amount and pays it.
func (o *Orchestrator) pay(ctx context.Context, address string, amountSats int64) (string, error) {
	invoice, err := o.resolver.ResolveAddress(ctx, address, amountSats, paymentComment)
	if err != nil {
		return "", fmt.Errorf("resolve invoice: %w", err)
	}

	preimage, err := o.payer.PayInvoice(ctx, invoice)
	if err != nil {
		return "", fmt.Errorf("pay invoice: %w", err)
	}
	if preimage == "" {
		return "", fmt.Errorf("payment returned no preimage")
	}

	logger.Info("reward paid", zap.Int64("amount_sats", amountSats))
	return preimage, nil
}
