package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/zapfit/server/internal/logger"
	"github.com/zapfit/server/internal/submit"
)

// SubmissionProcessor runs the workout validation pipeline.
type SubmissionProcessor interface {
	Process(ctx context.Context, sub *submit.Submission) (*submit.Result, error)
}

// SubmissionHandler handles the submit-workout endpoint
type SubmissionHandler struct {
	validator SubmissionProcessor
}

// NewSubmissionHandler creates a new submission handler
func NewSubmissionHandler(validator SubmissionProcessor) *SubmissionHandler {
	return &SubmissionHandler{validator: validator}
}

// HandleSubmit handles POST /submit-workout. Plausibility rejections and
// duplicates are 200-level business outcomes; only malformed input is a 400.
func (h *SubmissionHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub submit.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.validator.Process(r.Context(), &sub)
	if err != nil {
		if errors.Is(err, submit.ErrMissingFields) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("submission processing failed",
			zap.String("event_id", sub.EventID), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "failed to process submission")
		return
	}

	respondJSON(w, http.StatusOK, result)
}
