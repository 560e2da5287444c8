package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapfit/server/internal/auth"
	"github.com/zapfit/server/internal/model"
	"github.com/zapfit/server/internal/reward"
	"github.com/zapfit/server/internal/submit"
	"github.com/zapfit/server/internal/verify"
	"github.com/zapfit/server/internal/wallet"
)

func postJSON(t *testing.T, handler http.HandlerFunc, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// --- verification handler ---

type fakeIssuer struct {
	result *verify.IssueResult
	err    error
}

func (f *fakeIssuer) Issue(_ context.Context, _ *verify.IssueRequest) (*verify.IssueResult, error) {
	return f.result, f.err
}

func TestVerificationHandlerHappyPath(t *testing.T) {
	code := "abcdef0123456789"
	h := NewVerificationHandler(&fakeIssuer{result: &verify.IssueResult{Code: &code, ExpiresIn: 300}})

	rec := postJSON(t, h.HandleIssue, map[string]interface{}{"npub": "npub1...", "workout_id": "w-1"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, code, body["code"])
	assert.Equal(t, float64(300), body["expires_in"])
}

func TestVerificationHandlerBadJSON(t *testing.T) {
	h := NewVerificationHandler(&fakeIssuer{})
	rec := postJSON(t, h.HandleIssue, "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerificationHandlerValidationError(t *testing.T) {
	h := NewVerificationHandler(&fakeIssuer{err: fmt.Errorf("%w: invalid npub", verify.ErrInvalidRequest)})
	rec := postJSON(t, h.HandleIssue, map[string]string{"npub": "bad"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "invalid npub")
}

func TestVerificationHandlerStorageError(t *testing.T) {
	h := NewVerificationHandler(&fakeIssuer{err: fmt.Errorf("db down")})
	rec := postJSON(t, h.HandleIssue, map[string]string{"npub": "npub1..."}, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestVerificationHandlerRateLimit(t *testing.T) {
	code := "abcdef0123456789"
	h := NewVerificationHandler(&fakeIssuer{result: &verify.IssueResult{Code: &code}})
	headers := map[string]string{"X-Forwarded-For": "203.0.113.9"}

	for i := 0; i < 30; i++ {
		rec := postJSON(t, h.HandleIssue, map[string]string{"npub": "npub1..."}, headers)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
	}
	rec := postJSON(t, h.HandleIssue, map[string]string{"npub": "npub1..."}, headers)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// A different client is unaffected.
	other := postJSON(t, h.HandleIssue, map[string]string{"npub": "npub1..."}, map[string]string{"X-Forwarded-For": "203.0.113.10"})
	assert.Equal(t, http.StatusOK, other.Code)
}

// --- submission handler ---

type fakeProcessor struct {
	result *submit.Result
	err    error
}

func (f *fakeProcessor) Process(_ context.Context, _ *submit.Submission) (*submit.Result, error) {
	return f.result, f.err
}

func TestSubmissionHandlerHappyPath(t *testing.T) {
	h := NewSubmissionHandler(&fakeProcessor{result: &submit.Result{Success: true, Status: model.StatusVerified}})
	rec := postJSON(t, h.HandleSubmit, map[string]string{"event_id": "ev1", "npub": "npub1..."}, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "verified", body["verification_status"])
}

func TestSubmissionHandlerFlaggedOutcomeIs200(t *testing.T) {
	h := NewSubmissionHandler(&fakeProcessor{result: &submit.Result{Success: false, Flagged: true, Reason: "pace 12s/km too fast for running"}})
	rec := postJSON(t, h.HandleSubmit, map[string]string{"event_id": "ev1", "npub": "npub1..."}, nil)

	assert.Equal(t, http.StatusOK, rec.Code, "a flagged workout is a business outcome, not an HTTP error")
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, true, body["flagged"])
}

func TestSubmissionHandlerBadJSON(t *testing.T) {
	h := NewSubmissionHandler(&fakeProcessor{})
	rec := postJSON(t, h.HandleSubmit, "not json at all", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmissionHandlerMissingFields(t *testing.T) {
	h := NewSubmissionHandler(&fakeProcessor{err: submit.ErrMissingFields})
	rec := postJSON(t, h.HandleSubmit, map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmissionHandlerStorageError(t *testing.T) {
	h := NewSubmissionHandler(&fakeProcessor{err: fmt.Errorf("db down")})
	rec := postJSON(t, h.HandleSubmit, map[string]string{"event_id": "ev1"}, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// --- reward handler ---

type fakeClaimer struct {
	result      *reward.Result
	err         error
	lastAddress string
	lastType    string
	lastAmount  int
}

func (f *fakeClaimer) Claim(_ context.Context, address, rewardType string, amountSats int) (*reward.Result, error) {
	f.lastAddress = address
	f.lastType = rewardType
	f.lastAmount = amountSats
	return f.result, f.err
}

type fakeWalletClient struct {
	preimage string
	balance  int64
	info     *wallet.Info
	invoice  *wallet.Invoice
	status   *wallet.InvoiceStatus
	err      error
}

func (f *fakeWalletClient) PayInvoice(_ context.Context, _ string) (string, error) {
	return f.preimage, f.err
}

func (f *fakeWalletClient) MakeInvoice(_ context.Context, _ int64, _ string) (*wallet.Invoice, error) {
	return f.invoice, f.err
}

func (f *fakeWalletClient) LookupInvoice(_ context.Context, _ string) (*wallet.InvoiceStatus, error) {
	return f.status, f.err
}

func (f *fakeWalletClient) GetBalance(_ context.Context) (int64, error) {
	return f.balance, f.err
}

func (f *fakeWalletClient) GetInfo(_ context.Context) (*wallet.Info, error) {
	return f.info, f.err
}

type rewardFixture struct {
	handler *RewardHandler
	claimer *fakeClaimer
	wallet  *fakeWalletClient
	tokens  *auth.TokenService
}

func newRewardFixture() *rewardFixture {
	claimer := &fakeClaimer{result: &reward.Result{Success: true, PaidSats: 50, Preimage: "deadbeef"}}
	walletClient := &fakeWalletClient{
		preimage: "deadbeef",
		balance:  21_000_000,
		info:     &wallet.Info{Alias: "test-wallet", Network: "mainnet", Methods: []string{"pay_invoice"}},
		invoice:  &wallet.Invoice{Invoice: "lnbc500n1...", PaymentHash: "hash123"},
		status:   &wallet.InvoiceStatus{Settled: true, SettledAt: 1700000000, Amount: 50_000},
	}
	tokens := auth.NewTokenService("test-admin-secret")
	return &rewardFixture{
		handler: NewRewardHandler(claimer, walletClient, tokens),
		claimer: claimer,
		wallet:  walletClient,
		tokens:  tokens,
	}
}

func (fx *rewardFixture) adminHeaders(t *testing.T) map[string]string {
	t.Helper()
	token, err := fx.tokens.SignAdminToken()
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestRewardHandlerClaim(t *testing.T) {
	fx := newRewardFixture()

	rec := postJSON(t, fx.handler.HandleClaim, map[string]interface{}{
		"operation":         "claim_reward",
		"lightning_address": "satoshi@example.com",
		"reward_type":       "workout",
	}, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(50), body["paid_sats"])
	assert.Equal(t, "satoshi@example.com", fx.claimer.lastAddress)
	assert.Equal(t, "workout", fx.claimer.lastType)
}

func TestRewardHandlerClaimIsDefaultOperation(t *testing.T) {
	fx := newRewardFixture()

	rec := postJSON(t, fx.handler.HandleClaim, map[string]interface{}{
		"lightning_address": "satoshi@example.com",
		"reward_type":       "steps",
		"amount_sats":       30,
	}, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "steps", fx.claimer.lastType)
	assert.Equal(t, 30, fx.claimer.lastAmount)
}

func TestRewardHandlerClaimSoftOutcome(t *testing.T) {
	fx := newRewardFixture()
	fx.claimer.result = &reward.Result{Success: true, Reason: "already_claimed"}

	rec := postJSON(t, fx.handler.HandleClaim, map[string]interface{}{
		"lightning_address": "satoshi@example.com",
		"reward_type":       "workout",
	}, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "already_claimed", body["reason"])
}

func TestRewardHandlerClaimInvalidInput(t *testing.T) {
	fx := newRewardFixture()
	fx.claimer.result = nil
	fx.claimer.err = fmt.Errorf("%w: unknown reward type", reward.ErrInvalidRequest)

	rec := postJSON(t, fx.handler.HandleClaim, map[string]interface{}{
		"lightning_address": "satoshi@example.com",
		"reward_type":       "jackpot",
	}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRewardHandlerClaimUpstreamFailureIs200(t *testing.T) {
	fx := newRewardFixture()
	fx.claimer.result = nil
	fx.claimer.err = fmt.Errorf("timeout: no response to pay_invoice within 30s")

	rec := postJSON(t, fx.handler.HandleClaim, map[string]interface{}{
		"lightning_address": "satoshi@example.com",
		"reward_type":       "workout",
	}, nil)

	assert.Equal(t, http.StatusOK, rec.Code, "wallet failures are retryable, not HTTP errors")
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["error"])
}

func TestRewardHandlerBadJSON(t *testing.T) {
	fx := newRewardFixture()
	rec := postJSON(t, fx.handler.HandleClaim, "{", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRewardHandlerUnknownOperation(t *testing.T) {
	fx := newRewardFixture()
	rec := postJSON(t, fx.handler.HandleClaim, map[string]string{"operation": "mint_money"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRewardHandlerWalletOpsRequireAdmin(t *testing.T) {
	fx := newRewardFixture()
	operations := []string{"pay_invoice", "create_invoice", "lookup_invoice", "get_balance", "diagnose"}

	for _, op := range operations {
		t.Run(op, func(t *testing.T) {
			rec := postJSON(t, fx.handler.HandleClaim, map[string]string{"operation": op}, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "no token")

			rec = postJSON(t, fx.handler.HandleClaim, map[string]string{"operation": op},
				map[string]string{"Authorization": "Bearer garbage"})
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "bad token")
		})
	}
}

func TestRewardHandlerPayInvoice(t *testing.T) {
	fx := newRewardFixture()

	rec := postJSON(t, fx.handler.HandleClaim, map[string]string{
		"operation": "pay_invoice",
		"invoice":   "lnbc500n1...",
	}, fx.adminHeaders(t))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "deadbeef", body["preimage"])
}

func TestRewardHandlerPayInvoiceRequiresInvoice(t *testing.T) {
	fx := newRewardFixture()
	rec := postJSON(t, fx.handler.HandleClaim, map[string]string{"operation": "pay_invoice"}, fx.adminHeaders(t))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRewardHandlerCreateInvoice(t *testing.T) {
	fx := newRewardFixture()

	rec := postJSON(t, fx.handler.HandleClaim, map[string]interface{}{
		"operation":    "create_invoice",
		"amount_msats": 50_000,
		"description":  "test",
	}, fx.adminHeaders(t))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "lnbc500n1...", body["invoice"])
	assert.Equal(t, "hash123", body["payment_hash"])
}

func TestRewardHandlerLookupInvoice(t *testing.T) {
	fx := newRewardFixture()

	rec := postJSON(t, fx.handler.HandleClaim, map[string]string{
		"operation":    "lookup_invoice",
		"payment_hash": "hash123",
	}, fx.adminHeaders(t))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["settled"])
	assert.Equal(t, float64(1700000000), body["settled_at"])
}

func TestRewardHandlerGetBalance(t *testing.T) {
	fx := newRewardFixture()

	rec := postJSON(t, fx.handler.HandleClaim, map[string]string{"operation": "get_balance"}, fx.adminHeaders(t))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(21_000_000), body["balance_msats"])
}

func TestRewardHandlerDiagnose(t *testing.T) {
	fx := newRewardFixture()

	rec := postJSON(t, fx.handler.HandleClaim, map[string]string{"operation": "diagnose"}, fx.adminHeaders(t))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "test-wallet", body["alias"])
	assert.Equal(t, float64(21_000_000), body["balance_msats"])
}

func TestRewardHandlerWalletFailureIs200(t *testing.T) {
	fx := newRewardFixture()
	fx.wallet.err = fmt.Errorf("transport_error: dial relay: connection refused")

	rec := postJSON(t, fx.handler.HandleClaim, map[string]string{"operation": "get_balance"}, fx.adminHeaders(t))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Contains(t, body["error"], "connection refused")
}

func TestRewardHandlerClaimRateLimit(t *testing.T) {
	fx := newRewardFixture()
	payload := map[string]interface{}{
		"lightning_address": "hammer@example.com",
		"reward_type":       "workout",
	}

	for i := 0; i < 10; i++ {
		rec := postJSON(t, fx.handler.HandleClaim, payload, nil)
		require.Equal(t, http.StatusOK, rec.Code, "request "+strconv.Itoa(i))
	}
	rec := postJSON(t, fx.handler.HandleClaim, payload, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Other addresses are unaffected.
	other := postJSON(t, fx.handler.HandleClaim, map[string]interface{}{
		"lightning_address": "calm@example.com",
		"reward_type":       "workout",
	}, nil)
	assert.Equal(t, http.StatusOK, other.Code)
}
