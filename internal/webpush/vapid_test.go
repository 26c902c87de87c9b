package webpush

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVAPID(t *testing.T, subject string) *VAPID {
	t.Helper()
	pub, priv, err := GenerateVAPIDKeys()
	require.NoError(t, err)
	v, err := NewVAPID(pub, priv, subject)
	require.NoError(t, err)
	assert.Equal(t, pub, v.PublicKey())
	return v
}

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	require.NoError(t, err)

	rawPub, err := decodeBase64(pub)
	require.NoError(t, err)
	assert.Len(t, rawPub, keyLen)
	rawPriv, err := decodeBase64(priv)
	require.NoError(t, err)
	assert.Len(t, rawPriv, 32)
}

func TestVAPID_DefaultSubject(t *testing.T) {
	v := newTestVAPID(t, "")
	assert.Equal(t, DefaultSubject, v.subject)
}

func TestNewVAPID_DerivesPublicKey(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	require.NoError(t, err)

	v, err := NewVAPID("", priv, "")
	require.NoError(t, err)
	assert.Equal(t, pub, v.PublicKey())
}

func TestNewVAPID_MismatchedKeys(t *testing.T) {
	_, priv, err := GenerateVAPIDKeys()
	require.NoError(t, err)
	otherPub, _, err := GenerateVAPIDKeys()
	require.NoError(t, err)

	_, err = NewVAPID(otherPub, priv, "")
	assert.Error(t, err)
}

func TestNewVAPID_BadPrivateKey(t *testing.T) {
	_, err := NewVAPID("", "AAAA", "")
	assert.Error(t, err)
}
