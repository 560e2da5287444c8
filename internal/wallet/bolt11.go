package wallet

import (
	"regexp"
	"strconv"
	"strings"
)

var bolt11AmountPattern = regexp.MustCompile(`^ln(?:bc|tb|bcrt)(\d+)([munp])?`)

// parseBolt11Amount extracts the amount in satoshis from a bolt11 invoice.
// Returns 0 if no amount is encoded or it cannot be parsed.
func parseBolt11Amount(invoice string) int64 {
	matches := bolt11AmountPattern.FindStringSubmatch(strings.ToLower(invoice))
	if len(matches) < 2 {
		return 0
	}

	amount, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0
	}

	multiplier := ""
	if len(matches) >= 3 {
		multiplier = matches[2]
	}

	// Multipliers scale BTC: m=10^-3, u=10^-6, n=10^-9, p=10^-12.
	switch multiplier {
	case "m":
		return amount * 100000
	case "u":
		return amount * 100
	case "n":
		return amount / 10
	case "p":
		return amount / 10000
	default:
		return amount * 100000000
	}
}
