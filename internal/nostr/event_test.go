package nostr

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomSecret(t *testing.T) []byte {
	t.Helper()
	secret := make([]byte, 32)
	_, err := rand.Read(secret)
	require.NoError(t, err)
	return secret
}

func TestComputeIDStable(t *testing.T) {
	event := &Event{
		PubKey:    "79be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798",
		CreatedAt: 1700000000,
		Kind:      KindWalletRequest,
		Tags:      [][]string{{"p", "deadbeef"}},
		Content:   "hello",
	}

	first, err := event.ComputeID()
	require.NoError(t, err)
	assert.Len(t, first, 64)

	second, err := event.ComputeID()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	event.Content = "hello!"
	changed, err := event.ComputeID()
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)
}

func TestComputeIDDoesNotEscapeHTML(t *testing.T) {
	event := &Event{Kind: 1, Tags: [][]string{}, Content: "a<b&c>d"}
	id, err := event.ComputeID()
	require.NoError(t, err)

	// An escaping serializer would hash the unicode escape of < and
	// disagree with every other implementation on the wire.
	canonical := `[0,"",0,1,[],"a<b&c>d"]`
	sum := sha256.Sum256([]byte(canonical))
	assert.Equal(t, hex.EncodeToString(sum[:]), id)
}

func TestSignAndVerify(t *testing.T) {
	secret := randomSecret(t)
	pub, err := DerivePublicKey(secret)
	require.NoError(t, err)
	assert.Len(t, pub, 64)

	event := &Event{
		PubKey:    pub,
		CreatedAt: 1700000000,
		Kind:      KindWalletRequest,
		Tags:      [][]string{{"p", pub}},
		Content:   "payload",
	}
	require.NoError(t, event.Sign(secret))
	assert.Len(t, event.ID, 64)
	assert.Len(t, event.Sig, 128)

	assert.True(t, event.Verify())

	tampered := *event
	tampered.Content = "other payload"
	assert.False(t, tampered.Verify(), "id no longer matches the body")

	wrongSigner := *event
	otherSecret := randomSecret(t)
	otherPub, err := DerivePublicKey(otherSecret)
	require.NoError(t, err)
	wrongSigner.PubKey = otherPub
	id, err := wrongSigner.ComputeID()
	require.NoError(t, err)
	wrongSigner.ID = id
	assert.False(t, wrongSigner.Verify(), "signature is not by the claimed pubkey")
}

func TestSignRejectsBadSecret(t *testing.T) {
	event := &Event{Kind: 1, Tags: [][]string{}}
	assert.Error(t, event.Sign([]byte("short")))

	_, err := DerivePublicKey([]byte("short"))
	assert.Error(t, err)
}

func TestTagValue(t *testing.T) {
	event := &Event{Tags: [][]string{
		{"e", "abc123"},
		{"p", "def456"},
		{"p", "later"},
	}}
	assert.Equal(t, "abc123", event.TagValue("e"))
	assert.Equal(t, "def456", event.TagValue("p"), "first match wins")
	assert.Equal(t, "", event.TagValue("d"))
}

func TestDerivePublicKeyIsHex(t *testing.T) {
	pub, err := DerivePublicKey(randomSecret(t))
	require.NoError(t, err)
	_, err = hex.DecodeString(pub)
	assert.NoError(t, err)
}
