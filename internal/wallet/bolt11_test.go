package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBolt11Amount(t *testing.T) {
	tests := []struct {
		name    string
		invoice string
		want    int64
	}{
		{"50 sats in nano", "lnbc500n1pjk...", 50},
		{"100 sats in micro", "lnbc1u1pjk...", 100},
		{"millibitcoin", "lnbc10m1pjk...", 1_000_000},
		{"pico", "lnbc500000p1pjk...", 50},
		{"whole bitcoin", "lnbc1qpjk...", 100_000_000},
		{"testnet prefix", "lntb500n1pjk...", 50},
		{"regtest prefix", "lnbcrt500n1pjk...", 50},
		{"uppercase invoice", "LNBC500N1PJK...", 50},
		{"amountless invoice rounds to zero", "lnbc1pjk...", 0},
		{"not an invoice", "hello", 0},
		{"empty", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseBolt11Amount(tt.invoice))
		})
	}
}
