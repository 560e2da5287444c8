package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lnurlServer serves the two-step LNURL-pay flow for one address.
type lnurlServer struct {
	srv           *httptest.Server
	minSendable   int64
	maxSendable   int64
	payParamsErr  string
	invoiceErr    string
	invoice       string
	lastAmount    string
	lastComment   string
	requestedName string
}

func newLNURLServer(t *testing.T) *lnurlServer {
	t.Helper()
	ls := &lnurlServer{
		minSendable: 1_000,       // 1 sat
		maxSendable: 100_000_000, // 100k sats
		invoice:     "lnbc500n1fakeinvoice",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/lnurlp/", func(w http.ResponseWriter, r *http.Request) {
		ls.requestedName = r.URL.Path[len("/.well-known/lnurlp/"):]
		if ls.payParamsErr != "" {
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ERROR", "reason": ls.payParamsErr})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"callback":    ls.srv.URL + "/lnurl/callback",
			"minSendable": ls.minSendable,
			"maxSendable": ls.maxSendable,
		})
	})
	mux.HandleFunc("/lnurl/callback", func(w http.ResponseWriter, r *http.Request) {
		ls.lastAmount = r.URL.Query().Get("amount")
		ls.lastComment = r.URL.Query().Get("comment")
		if ls.invoiceErr != "" {
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ERROR", "reason": ls.invoiceErr})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"pr": ls.invoice})
	})

	ls.srv = httptest.NewServer(mux)
	t.Cleanup(ls.srv.Close)
	return ls
}

func (ls *lnurlServer) resolver() *Resolver {
	return &Resolver{httpClient: ls.srv.Client(), baseURL: ls.srv.URL}
}

func TestResolveAddressHappyPath(t *testing.T) {
	ls := newLNURLServer(t)

	invoice, err := ls.resolver().ResolveAddress(context.Background(), "Satoshi@Example.com", 50, "reward")
	require.NoError(t, err)
	assert.Equal(t, ls.invoice, invoice)

	assert.Equal(t, "satoshi", ls.requestedName, "name must be lowercased")
	assert.Equal(t, "50000", ls.lastAmount, "callback amount is in millisatoshis")
	assert.Equal(t, "reward", ls.lastComment)
}

func TestResolveAddressValidation(t *testing.T) {
	ls := newLNURLServer(t)
	r := ls.resolver()
	ctx := context.Background()

	_, err := r.ResolveAddress(ctx, "no-at-sign", 50, "")
	assert.Error(t, err)

	_, err = r.ResolveAddress(ctx, "@domain.com", 50, "")
	assert.Error(t, err)

	_, err = r.ResolveAddress(ctx, "name@", 50, "")
	assert.Error(t, err)

	_, err = r.ResolveAddress(ctx, "a@b.com", 0, "")
	assert.Error(t, err)

	_, err = r.ResolveAddress(ctx, "a@b.com", -5, "")
	assert.Error(t, err)
}

func TestResolveAddressAmountBounds(t *testing.T) {
	ls := newLNURLServer(t)
	ls.minSendable = 10_000  // 10 sats
	ls.maxSendable = 100_000 // 100 sats
	r := ls.resolver()

	_, err := r.ResolveAddress(context.Background(), "a@b.com", 5, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside sendable bounds")

	_, err = r.ResolveAddress(context.Background(), "a@b.com", 500, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside sendable bounds")
}

func TestResolveAddressEndpointError(t *testing.T) {
	ls := newLNURLServer(t)
	ls.payParamsErr = "user not found"

	_, err := ls.resolver().ResolveAddress(context.Background(), "ghost@b.com", 50, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user not found")
}

func TestResolveAddressCallbackError(t *testing.T) {
	ls := newLNURLServer(t)
	ls.invoiceErr = "temporarily unavailable"

	_, err := ls.resolver().ResolveAddress(context.Background(), "a@b.com", 50, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temporarily unavailable")
}

func TestResolveAddressInvoiceAmountMismatch(t *testing.T) {
	ls := newLNURLServer(t)
	ls.invoice = "lnbc210n1fakeinvoice" // 21 sats, not the requested 50

	_, err := ls.resolver().ResolveAddress(context.Background(), "a@b.com", 50, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requested 50")
}

func TestResolveAddressAmountlessInvoiceAccepted(t *testing.T) {
	ls := newLNURLServer(t)
	ls.invoice = "lnbc1pjkamountless" // no stated amount, nothing to cross-check

	invoice, err := ls.resolver().ResolveAddress(context.Background(), "a@b.com", 50, "")
	require.NoError(t, err)
	assert.Equal(t, ls.invoice, invoice)
}
