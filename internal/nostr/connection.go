package nostr

import (
	"encoding/hex"
	"net/url"
	"strings"
)

const connectionScheme = "nostr+walletconnect://"

// Connection holds the wallet connection parameters parsed from a
// nostr+walletconnect:// string. It is ephemeral: re-derived from the secret
// on every call and never persisted.
type Connection struct {
	WalletPubKey string // wallet's x-only public key, hex
	RelayURL     string
	Secret       []byte // 32-byte client secret, the shared credential
	ClientPubKey string // derived from Secret
	sharedKey    []byte // NIP-04 symmetric key, precomputed
}

// ParseConnection parses and validates a wallet connection string:
// nostr+walletconnect://<wallet-pubkey>?relay=<wss://...>&secret=<hex>.
// All failures are KindMalformedConnection and precede any network I/O.
func ParseConnection(raw string) (*Connection, error) {
	if !strings.HasPrefix(raw, connectionScheme) {
		return nil, newError(KindMalformedConnection, "connection string must start with %s", connectionScheme)
	}

	// url.Parse rejects the + in the scheme, so swap it out first.
	u, err := url.Parse(strings.Replace(raw, connectionScheme, "https://", 1))
	if err != nil {
		return nil, newError(KindMalformedConnection, "unparseable connection string: %v", err)
	}

	walletPubKey := u.Host
	if len(walletPubKey) != 64 {
		return nil, newError(KindMalformedConnection, "wallet pubkey must be 64 hex characters")
	}
	if _, err := hex.DecodeString(walletPubKey); err != nil {
		return nil, newError(KindMalformedConnection, "wallet pubkey is not valid hex")
	}

	relay := u.Query().Get("relay")
	if relay == "" {
		return nil, newError(KindMalformedConnection, "connection string must include a relay parameter")
	}
	if !strings.HasPrefix(relay, "wss://") && !strings.HasPrefix(relay, "ws://") {
		return nil, newError(KindMalformedConnection, "relay URL must start with wss:// or ws://")
	}

	secretHex := u.Query().Get("secret")
	if len(secretHex) != 64 {
		return nil, newError(KindMalformedConnection, "secret must be 64 hex characters")
	}
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return nil, newError(KindMalformedConnection, "secret is not valid hex")
	}

	clientPubKey, err := DerivePublicKey(secret)
	if err != nil {
		return nil, newError(KindMalformedConnection, "derive client pubkey: %v", err)
	}

	sharedKey, err := SharedSecret(secret, walletPubKey)
	if err != nil {
		return nil, newError(KindMalformedConnection, "derive shared key: %v", err)
	}

	return &Connection{
		WalletPubKey: walletPubKey,
		RelayURL:     relay,
		Secret:       secret,
		ClientPubKey: clientPubKey,
		sharedKey:    sharedKey,
	}, nil
}

// SharedKey returns the precomputed NIP-04 symmetric key for this connection.
func (c *Connection) SharedKey() []byte {
	return c.sharedKey
}
