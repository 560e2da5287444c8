package model

import (
	"time"

	"github.com/google/uuid"
)

// VerificationStatus is the outcome of the verification-code check for a
// submission. It controls leaderboard eligibility and audit visibility, not
// acceptance.
type VerificationStatus string

const (
	StatusVerified   VerificationStatus = "verified"
	StatusUnverified VerificationStatus = "unverified"
	StatusInvalid    VerificationStatus = "invalid"
	StatusLegacy     VerificationStatus = "legacy"
	StatusExpired    VerificationStatus = "expired"
	StatusReplay     VerificationStatus = "replay"
	StatusTampered   VerificationStatus = "tampered"
)

// LeaderboardEligible reports whether a submission with this status appears
// in ranked views.
func (s VerificationStatus) LeaderboardEligible() bool {
	return s == StatusVerified || s == StatusLegacy
}

// VerificationRecord is a single-use code minted for one workout. The code is
// valid only while unused and unexpired; Used is a one-way flip.
type VerificationRecord struct {
	WorkoutID     string
	Npub          string
	CanonicalHash string
	Code          string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Used          bool
}

// WorkoutSubmission is an accepted workout. Rows are write-once; leaderboard
// queries filter to statuses verified and legacy.
type WorkoutSubmission struct {
	EventID            string
	Npub               string
	RawActivityType    string
	ActivityType       string
	DistanceMeters     float64
	DurationSeconds    int64
	StartedAt          time.Time
	Splits             map[float64]int64 // km -> elapsed seconds
	Time5K             *int64
	Time10K            *int64
	TimeHalf           *int64
	TimeMarathon       *int64
	StepCount          *int64
	LeaderboardDate    string // UTC calendar date, YYYY-MM-DD
	VerificationStatus VerificationStatus
	CreatedAt          time.Time
}

// FlaggedWorkout is a submission rejected by the plausibility gate, kept with
// a human-readable reason. Disjoint from WorkoutSubmission by event_id.
type FlaggedWorkout struct {
	ID              uuid.UUID
	EventID         string
	Npub            string
	ActivityType    string
	DistanceMeters  float64
	DurationSeconds int64
	Reason          string
	CreatedAt       time.Time
}

// DailyRewardClaim tracks reward payouts per hashed lightning address per UTC
// day. The address itself is never persisted. Resets naturally at the date
// boundary because rows are keyed by (address_hash, reward_date).
type DailyRewardClaim struct {
	AddressHash     string
	RewardDate      string // YYYY-MM-DD
	WorkoutClaimed  bool
	StepSatsClaimed int
	UpdatedAt       time.Time
}
