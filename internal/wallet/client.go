package wallet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zapfit/server/internal/nostr"
)

// Client exposes the five wallet operations over the relay transport. The
// connection is re-derived from the configured connection string on every
// call; nothing about the wallet is ever persisted.
type Client struct {
	connectionString string
}

// NewClient creates a wallet client. The connection string is validated per
// call so a malformed value surfaces as KindMalformedConnection on use.
func NewClient(connectionString string) *Client {
	return &Client{connectionString: connectionString}
}

// Invoice is the result of MakeInvoice.
type Invoice struct {
	Invoice     string `json:"invoice"`
	PaymentHash string `json:"payment_hash"`
}

// InvoiceStatus is the result of LookupInvoice.
type InvoiceStatus struct {
	Settled   bool  `json:"settled"`
	SettledAt int64 `json:"settled_at"`
	Amount    int64 `json:"amount"` // millisatoshis
}

// Info identifies the wallet service, used by the diagnose operation.
type Info struct {
	Alias   string   `json:"alias"`
	Pubkey  string   `json:"pubkey"`
	Network string   `json:"network"`
	Methods []string `json:"methods"`
}

func (c *Client) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	conn, err := nostr.ParseConnection(c.connectionString)
	if err != nil {
		return err
	}

	raw, err := nostr.NewClient(conn).Call(ctx, method, params)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("parse %s result: %w", method, err)
	}
	return nil
}

// PayInvoice pays a bolt11 invoice and returns the payment preimage.
func (c *Client) PayInvoice(ctx context.Context, invoice string) (string, error) {
	var result struct {
		Preimage string `json:"preimage"`
	}
	params := struct {
		Invoice string `json:"invoice"`
	}{Invoice: invoice}

	if err := c.call(ctx, "pay_invoice", params, &result); err != nil {
		return "", err
	}
	if result.Preimage == "" {
		return "", fmt.Errorf("wallet returned no preimage")
	}
	return result.Preimage, nil
}

// MakeInvoice asks the wallet to create an invoice for the given amount.
func (c *Client) MakeInvoice(ctx context.Context, amountMsat int64, description string) (*Invoice, error) {
	var result Invoice
	params := struct {
		Amount      int64  `json:"amount"`
		Description string `json:"description,omitempty"`
	}{Amount: amountMsat, Description: description}

	if err := c.call(ctx, "make_invoice", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// LookupInvoice reports the settlement state of an invoice by payment hash.
func (c *Client) LookupInvoice(ctx context.Context, paymentHash string) (*InvoiceStatus, error) {
	var result struct {
		SettledAt int64 `json:"settled_at"`
		Amount    int64 `json:"amount"`
	}
	params := struct {
		PaymentHash string `json:"payment_hash"`
	}{PaymentHash: paymentHash}

	if err := c.call(ctx, "lookup_invoice", params, &result); err != nil {
		return nil, err
	}
	return &InvoiceStatus{
		Settled:   result.SettledAt > 0,
		SettledAt: result.SettledAt,
		Amount:    result.Amount,
	}, nil
}

// GetBalance returns the wallet balance in millisatoshis.
func (c *Client) GetBalance(ctx context.Context) (int64, error) {
	var result struct {
		Balance int64 `json:"balance"`
	}
	if err := c.call(ctx, "get_balance", struct{}{}, &result); err != nil {
		return 0, err
	}
	return result.Balance, nil
}

// GetInfo returns wallet identity and capabilities.
func (c *Client) GetInfo(ctx context.Context) (*Info, error) {
	var result Info
	if err := c.call(ctx, "get_info", struct{}{}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
