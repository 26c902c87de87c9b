package webpush

import (
	"bytes"
	"crypto/ecdh"
	"encoding/base64"
	"errors"
	"fmt"

	webpushgo "github.com/SherClockHolmes/webpush-go"
)

// DefaultSubject is used when no VAPID subject is configured.
const DefaultSubject = "mailto:user@example.org"

// VAPID is the process-wide application server identity.
type VAPID struct {
	publicKey  string
	privateKey string
	subject    string
}

// NewVAPID checks a base64url key pair: the raw 32 byte private scalar and
// the 65 byte uncompressed public point. An empty publicKey is derived.
func NewVAPID(publicKey, privateKey, subject string) (*VAPID, error) {
	raw, err := decodeBase64(privateKey)
	if err != nil {
		return nil, fmt.Errorf("webpush: decode VAPID private key: %w", err)
	}
	key, err := ecdh.P256().NewPrivateKey(raw)
	if err != nil {
		return nil, fmt.Errorf("webpush: VAPID private key: %w", err)
	}

	derived := key.PublicKey().Bytes()
	if publicKey != "" {
		pub, err := decodeBase64(publicKey)
		if err != nil {
			return nil, fmt.Errorf("webpush: decode VAPID public key: %w", err)
		}
		if !bytes.Equal(pub, derived) {
			return nil, errors.New("webpush: VAPID public key does not match private key")
		}
	}

	if subject == "" {
		subject = DefaultSubject
	}
	return &VAPID{
		publicKey:  base64.RawURLEncoding.EncodeToString(derived),
		privateKey: base64.RawURLEncoding.EncodeToString(raw),
		subject:    subject,
	}, nil
}

// PublicKey is the base64url application server key clients subscribe with.
func (v *VAPID) PublicKey() string {
	return v.publicKey
}

// GenerateVAPIDKeys returns a new base64url public/private key pair.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpushgo.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("webpush: generate VAPID keys: %w", err)
	}
	return publicKey, privateKey, nil
}
