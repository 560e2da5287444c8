package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zapfit/server/internal/logger"
	"github.com/zapfit/server/internal/middleware"
	"github.com/zapfit/server/internal/reward"
	"github.com/zapfit/server/internal/wallet"
)

// RewardClaimer processes reward claims end to end.
type RewardClaimer interface {
	Claim(ctx context.Context, address, rewardType string, amountSats int) (*reward.Result, error)
}

// WalletClient is the wallet surface exposed through the gateway's
// operator-only passthrough operations.
type WalletClient interface {
	PayInvoice(ctx context.Context, invoice string) (string, error)
	MakeInvoice(ctx context.Context, amountMsat int64, description string) (*wallet.Invoice, error)
	LookupInvoice(ctx context.Context, paymentHash string) (*wallet.InvoiceStatus, error)
	GetBalance(ctx context.Context) (int64, error)
	GetInfo(ctx context.Context) (*wallet.Info, error)
}

// AdminVerifier checks operator bearer tokens.
type AdminVerifier interface {
	VerifyAdminToken(tokenString string) error
}

// RewardHandler multiplexes the claim-reward endpoint: public reward claims
// plus operator-only wallet passthrough operations, selected by the
// "operation" field of the request body.
type RewardHandler struct {
	orchestrator RewardClaimer
	walletClient WalletClient
	admin        AdminVerifier
	addrLimiter  *middleware.RateLimiter
}

// NewRewardHandler creates a new reward handler
func NewRewardHandler(orchestrator RewardClaimer, walletClient WalletClient, admin AdminVerifier) *RewardHandler {
	// 10 claim attempts per 5 min per address; the persistent daily caps do
	// the real limiting, this just absorbs hammering.
	return &RewardHandler{
		orchestrator: orchestrator,
		walletClient: walletClient,
		admin:        admin,
		addrLimiter:  middleware.NewRateLimiter(5*time.Minute, 10),
	}
}

type rewardRequest struct {
	Operation string `json:"operation"`

	// claim_reward
	LightningAddress string `json:"lightning_address"`
	RewardType       string `json:"reward_type"`
	AmountSats       int    `json:"amount_sats"`

	// wallet passthrough
	Invoice     string `json:"invoice"`
	AmountMsats int64  `json:"amount_msats"`
	Description string `json:"description"`
	PaymentHash string `json:"payment_hash"`
}

// HandleClaim handles POST /claim-reward. Wallet and relay failures come back
// as HTTP 200 with success:false so clients can retry without special-casing
// status codes; only malformed input and auth failures use 4xx.
func (h *RewardHandler) HandleClaim(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Operation {
	case "", "claim_reward":
		h.handleClaimReward(w, r, &req)
	case "pay_invoice", "create_invoice", "lookup_invoice", "get_balance", "diagnose":
		if !h.authorized(r) {
			respondWithError(w, http.StatusUnauthorized, "admin token required")
			return
		}
		h.handleWalletOp(w, r, &req)
	default:
		respondWithError(w, http.StatusBadRequest, "unknown operation")
	}
}

func (h *RewardHandler) handleClaimReward(w http.ResponseWriter, r *http.Request, req *rewardRequest) {
	if !h.addrLimiter.Allow(middleware.GetAddressKey(reward.HashAddress(req.LightningAddress))) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	result, err := h.orchestrator.Claim(r.Context(), req.LightningAddress, req.RewardType, req.AmountSats)
	if err != nil {
		if errors.Is(err, reward.ErrInvalidRequest) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("reward claim failed",
			zap.String("reward_type", req.RewardType), zap.Error(err))
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"error":   "payment failed, please retry",
		})
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *RewardHandler) handleWalletOp(w http.ResponseWriter, r *http.Request, req *rewardRequest) {
	ctx := r.Context()

	var (
		payload interface{}
		err     error
	)
	switch req.Operation {
	case "pay_invoice":
		if req.Invoice == "" {
			respondWithError(w, http.StatusBadRequest, "invoice is required")
			return
		}
		var preimage string
		preimage, err = h.walletClient.PayInvoice(ctx, req.Invoice)
		payload = map[string]interface{}{"success": true, "preimage": preimage}

	case "create_invoice":
		if req.AmountMsats <= 0 {
			respondWithError(w, http.StatusBadRequest, "amount_msats must be positive")
			return
		}
		var inv *wallet.Invoice
		inv, err = h.walletClient.MakeInvoice(ctx, req.AmountMsats, req.Description)
		if err == nil {
			payload = map[string]interface{}{
				"success":      true,
				"invoice":      inv.Invoice,
				"payment_hash": inv.PaymentHash,
			}
		}

	case "lookup_invoice":
		if req.PaymentHash == "" {
			respondWithError(w, http.StatusBadRequest, "payment_hash is required")
			return
		}
		var status *wallet.InvoiceStatus
		status, err = h.walletClient.LookupInvoice(ctx, req.PaymentHash)
		if err == nil {
			payload = map[string]interface{}{
				"success":    true,
				"settled":    status.Settled,
				"settled_at": status.SettledAt,
				"amount":     status.Amount,
			}
		}

	case "get_balance":
		var balance int64
		balance, err = h.walletClient.GetBalance(ctx)
		payload = map[string]interface{}{"success": true, "balance_msats": balance}

	case "diagnose":
		payload, err = h.diagnose(ctx)
	}

	if err != nil {
		logger.Error("wallet operation failed",
			zap.String("operation", req.Operation), zap.Error(err))
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, payload)
}

// diagnose checks wallet connectivity end to end: identity plus balance over
// the same transport the payments use.
func (h *RewardHandler) diagnose(ctx context.Context) (interface{}, error) {
	info, err := h.walletClient.GetInfo(ctx)
	if err != nil {
		return nil, err
	}
	balance, err := h.walletClient.GetBalance(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success":       true,
		"alias":         info.Alias,
		"pubkey":        info.Pubkey,
		"network":       info.Network,
		"methods":       info.Methods,
		"balance_msats": balance,
	}, nil
}

func (h *RewardHandler) authorized(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if err := h.admin.VerifyAdminToken(token); err != nil {
		logger.Warn("rejected admin token", zap.Error(err))
		return false
	}
	return true
}
