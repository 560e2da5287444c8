package nostr

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Wallet control message kinds.
const (
	KindWalletRequest  = 23194 // client request to wallet
	KindWalletResponse = 23195 // wallet response to client
)

// Event is a signed, timestamped relay message.
type Event struct {
	ID        string     `json:"id"`
	PubKey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int        `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// ComputeID returns the hex SHA-256 of the canonical
// [0, pubkey, created_at, kind, tags, content] array.
func (e *Event) ComputeID() (string, error) {
	arr := []interface{}{0, e.PubKey, e.CreatedAt, e.Kind, e.Tags, e.Content}

	// Canonical serialization must not HTML-escape content.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(arr); err != nil {
		return "", fmt.Errorf("serialize event: %w", err)
	}
	serialized := bytes.TrimRight(buf.Bytes(), "\n")

	sum := sha256.Sum256(serialized)
	return hex.EncodeToString(sum[:]), nil
}

// Sign computes the event id and signs the id (not the serialized event)
// with a BIP-340 Schnorr signature under the 32-byte secret.
func (e *Event) Sign(secret []byte) error {
	if len(secret) != 32 {
		return fmt.Errorf("secret must be 32 bytes, got %d", len(secret))
	}

	id, err := e.ComputeID()
	if err != nil {
		return err
	}
	e.ID = id

	idBytes, err := hex.DecodeString(id)
	if err != nil {
		return fmt.Errorf("decode event id: %w", err)
	}

	priv, _ := btcec.PrivKeyFromBytes(secret)
	sig, err := schnorr.Sign(priv, idBytes)
	if err != nil {
		return fmt.Errorf("sign event: %w", err)
	}
	e.Sig = hex.EncodeToString(sig.Serialize())
	return nil
}

// Verify checks that the id matches the event body and the signature is a
// valid Schnorr signature over the id by the event's pubkey.
func (e *Event) Verify() bool {
	id, err := e.ComputeID()
	if err != nil || id != e.ID {
		return false
	}

	pubBytes, err := hex.DecodeString(e.PubKey)
	if err != nil || len(pubBytes) != 32 {
		return false
	}
	pub, err := schnorr.ParsePubKey(pubBytes)
	if err != nil {
		return false
	}

	sigBytes, err := hex.DecodeString(e.Sig)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(sigBytes)
	if err != nil {
		return false
	}

	idBytes, err := hex.DecodeString(e.ID)
	if err != nil {
		return false
	}
	return sig.Verify(idBytes, pub)
}

// TagValue returns the first value of the named tag, or "".
func (e *Event) TagValue(name string) string {
	for _, tag := range e.Tags {
		if len(tag) >= 2 && tag[0] == name {
			return tag[1]
		}
	}
	return ""
}

// DerivePublicKey returns the x-only (BIP-340) public key for a 32-byte
// secret, hex encoded.
func DerivePublicKey(secret []byte) (string, error) {
	if len(secret) != 32 {
		return "", fmt.Errorf("secret must be 32 bytes, got %d", len(secret))
	}
	_, pub := btcec.PrivKeyFromBytes(secret)
	return hex.EncodeToString(schnorr.SerializePubKey(pub)), nil
}
