package verify

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// codeLength is the number of hex characters kept from the truncated HMAC.
const codeLength = 16

// CanonicalString builds the exact field set a verification code certifies.
// Any later change to these values invalidates the code.
func CanonicalString(npub, workoutID, exercise string, distanceM, durationS, startTS int64) string {
	return fmt.Sprintf("%s:%s:%s:%d:%d:%d", npub, workoutID, exercise, distanceM, durationS, startTS)
}

// CanonicalHash is the hex SHA-256 of the canonical string, stored at
// issuance and compared against the submitted fields at validation.
func CanonicalHash(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Code computes the verification code: a 16-hex-char truncated HMAC-SHA256
// of the canonical string under the version secret.
func Code(secret, canonical string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))[:codeLength]
}

// LegacyCode computes the per-user fallback code for clients predating
// per-workout codes: HMAC(secret, npub:version), same truncation.
func LegacyCode(secret, npub, version string) string {
	return Code(secret, npub+":"+version)
}

// CodesEqual compares codes in constant time.
func CodesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
