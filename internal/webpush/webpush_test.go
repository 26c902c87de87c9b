package webpush

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/hkdf"
)

const (
	saltLen   = 16
	headerLen = saltLen + 4 + 1 + keyLen
)

// testRecipient is a browser-side key pair used to decrypt what we send.
type testRecipient struct {
	priv *ecdh.PrivateKey
	auth []byte
}

func newTestRecipient(t *testing.T) *testRecipient {
	t.Helper()
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return &testRecipient{priv: priv, auth: auth}
}

func (r *testRecipient) subscription(endpoint string) Subscription {
	return Subscription{
		Endpoint: endpoint,
		P256dh:   base64.RawURLEncoding.EncodeToString(r.priv.PublicKey().Bytes()),
		Auth:     base64.RawURLEncoding.EncodeToString(r.auth),
	}
}

// decrypt reverses an aes128gcm body as a user agent would (RFC 8291).
func (r *testRecipient) decrypt(t *testing.T, body []byte) []byte {
	t.Helper()
	require.Greater(t, len(body), headerLen)

	salt := body[:saltLen]
	idLen := int(body[saltLen+4])
	require.Equal(t, keyLen, idLen)
	asPubBytes := body[saltLen+5 : saltLen+5+idLen]
	ciphertext := body[saltLen+5+idLen:]

	asPub, err := ecdh.P256().NewPublicKey(asPubBytes)
	require.NoError(t, err)
	secret, err := r.priv.ECDH(asPub)
	require.NoError(t, err)

	uaPub := r.priv.PublicKey().Bytes()
	info := append(append([]byte("WebPush: info\x00"), uaPub...), asPubBytes...)
	ikm := make([]byte, 32)
	_, err = io.ReadFull(hkdf.New(sha256.New, secret, r.auth, info), ikm)
	require.NoError(t, err)
	cek := make([]byte, 16)
	_, err = io.ReadFull(hkdf.New(sha256.New, ikm, salt, []byte("Content-Encoding: aes128gcm\x00")), cek)
	require.NoError(t, err)
	nonce := make([]byte, 12)
	_, err = io.ReadFull(hkdf.New(sha256.New, ikm, salt, []byte("Content-Encoding: nonce\x00")), nonce)
	require.NoError(t, err)

	block, err := aes.NewCipher(cek)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)

	record, err := gcm.Open(nil, nonce, ciphertext, nil)
	require.NoError(t, err)

	// 去掉尾部零填充，最后一个非零字节是分隔符
	record = bytes.TrimRight(record, "\x00")
	require.NotEmpty(t, record)
	require.Equal(t, byte(0x02), record[len(record)-1], "last-record delimiter")
	return record[:len(record)-1]
}
