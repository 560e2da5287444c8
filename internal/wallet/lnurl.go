package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const lnurlHTTPTimeout = 10 * time.Second

// Resolver turns a human-readable name@domain lightning address into a
// payable bolt11 invoice via the LNURL-pay HTTPS flow.
type Resolver struct {
	httpClient *http.Client
	baseURL    string // overridden in tests; empty means https://<domain>
}

// NewResolver creates a resolver with bounded HTTP timeouts.
func NewResolver() *Resolver {
	return &Resolver{httpClient: &http.Client{Timeout: lnurlHTTPTimeout}}
}

// lnurlPayParams is the .well-known/lnurlp response.
type lnurlPayParams struct {
	Callback    string `json:"callback"`
	MinSendable int64  `json:"minSendable"` // millisatoshis
	MaxSendable int64  `json:"maxSendable"` // millisatoshis
	Status      string `json:"status"`
	Reason      string `json:"reason"`
}

// lnurlInvoice is the callback response.
type lnurlInvoice struct {
	PR     string `json:"pr"`
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// ResolveAddress fetches the LNURL-pay parameters for address, validates the
// requested amount against the advertised bounds and requests an invoice for
// exactly amountSats. A {status:"ERROR"} reply at either step aborts with its
// stated reason.
func (r *Resolver) ResolveAddress(ctx context.Context, address string, amountSats int64, comment string) (string, error) {
	name, domain, err := splitAddress(address)
	if err != nil {
		return "", err
	}
	if amountSats <= 0 {
		return "", fmt.Errorf("amount must be positive, got %d", amountSats)
	}

	base := r.baseURL
	if base == "" {
		base = "https://" + domain
	}

	params, err := r.fetchPayParams(ctx, base+"/.well-known/lnurlp/"+name)
	if err != nil {
		return "", err
	}

	amountMsat := amountSats * 1000
	if amountMsat < params.MinSendable || amountMsat > params.MaxSendable {
		return "", fmt.Errorf("amount %d msat outside sendable bounds [%d, %d]",
			amountMsat, params.MinSendable, params.MaxSendable)
	}

	invoice, err := r.fetchInvoice(ctx, params.Callback, amountMsat, comment)
	if err != nil {
		return "", err
	}

	// Cross-check the invoice amount when it is stated; a mismatched
	// invoice would pay the wrong reward.
	if sats := parseBolt11Amount(invoice); sats != 0 && sats != amountSats {
		return "", fmt.Errorf("resolved invoice is for %d sats, requested %d", sats, amountSats)
	}
	return invoice, nil
}

func (r *Resolver) fetchPayParams(ctx context.Context, endpoint string) (*lnurlPayParams, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build lnurlp request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch lnurlp params: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lnurlp endpoint returned %d", resp.StatusCode)
	}

	var params lnurlPayParams
	if err := json.NewDecoder(resp.Body).Decode(&params); err != nil {
		return nil, fmt.Errorf("parse lnurlp params: %w", err)
	}
	if strings.EqualFold(params.Status, "ERROR") {
		return nil, fmt.Errorf("lnurlp error: %s", params.Reason)
	}
	if params.Callback == "" {
		return nil, fmt.Errorf("lnurlp params missing callback")
	}
	return &params, nil
}

func (r *Resolver) fetchInvoice(ctx context.Context, callback string, amountMsat int64, comment string) (string, error) {
	u, err := url.Parse(callback)
	if err != nil {
		return "", fmt.Errorf("invalid callback URL: %w", err)
	}
	q := u.Query()
	q.Set("amount", strconv.FormatInt(amountMsat, 10))
	if comment != "" {
		q.Set("comment", comment)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build callback request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch invoice: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("callback returned %d", resp.StatusCode)
	}

	var inv lnurlInvoice
	if err := json.NewDecoder(resp.Body).Decode(&inv); err != nil {
		return "", fmt.Errorf("parse invoice response: %w", err)
	}
	if strings.EqualFold(inv.Status, "ERROR") {
		return "", fmt.Errorf("callback error: %s", inv.Reason)
	}
	if inv.PR == "" {
		return "", fmt.Errorf("callback returned no invoice")
	}
	return inv.PR, nil
}

// splitAddress validates and splits a name@domain lightning address.
func splitAddress(address string) (name, domain string, err error) {
	address = strings.ToLower(strings.TrimSpace(address))
	parts := strings.Split(address, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("lightning address must be name@domain")
	}
	return parts[0], parts[1], nil
}
