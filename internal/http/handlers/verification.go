package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/zapfit/server/internal/logger"
	"github.com/zapfit/server/internal/middleware"
	"github.com/zapfit/server/internal/verify"
)

// CodeIssuer mints verification codes for workouts.
type CodeIssuer interface {
	Issue(ctx context.Context, req *verify.IssueRequest) (*verify.IssueResult, error)
}

// VerificationHandler handles the get-workout-verification endpoint
type VerificationHandler struct {
	issuer    CodeIssuer
	ipLimiter *middleware.RateLimiter
}

// NewVerificationHandler creates a new verification handler
func NewVerificationHandler(issuer CodeIssuer) *VerificationHandler {
	// 30 code requests per 10 min per IP; a client re-requesting before
	// every workout stays well under this.
	return &VerificationHandler{
		issuer:    issuer,
		ipLimiter: middleware.NewRateLimiter(10*time.Minute, 30),
	}
}

// HandleIssue handles POST /get-workout-verification
func (h *VerificationHandler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	var req verify.IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !h.ipLimiter.Allow(middleware.GetIPKey(r)) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	result, err := h.issuer.Issue(r.Context(), &req)
	if err != nil {
		if errors.Is(err, verify.ErrInvalidRequest) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("verification issue failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "failed to issue verification code")
		return
	}

	respondJSON(w, http.StatusOK, result)
}
