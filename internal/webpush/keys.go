// Package webpush sends Web Push messages to browser subscriptions.
// Payload encryption and VAPID signing are done by webpush-go; this
// package owns key validation and the response shape the fanout reads.
package webpush

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const keyLen = 65

// Push services accept at most 4096 bytes of body. webpush-go pads one
// record behind an 86 byte header, leaving room for the plaintext, a
// delimiter byte and the 16 byte GCM tag.
const MaxPayloadSize = 4096 - 86 - 1 - 16

var (
	// ErrPayloadTooLarge the plaintext does not fit in one 4096 byte record.
	ErrPayloadTooLarge = errors.New("webpush: payload too large")
	// ErrInvalidKeys the subscription keys are malformed.
	ErrInvalidKeys = errors.New("webpush: invalid subscription keys")
)

// Keys are the recipient's subscription keys, already decoded.
type Keys struct {
	P256dh []byte
	Auth   []byte
}

// DecodeKeys accepts base64url (with or without padding) or standard base64.
func DecodeKeys(p256dh, auth string) (Keys, error) {
	pub, err := decodeBase64(p256dh)
	if err != nil || len(pub) != keyLen || pub[0] != 0x04 {
		return Keys{}, fmt.Errorf("%w: p256dh", ErrInvalidKeys)
	}
	a, err := decodeBase64(auth)
	if err != nil || len(a) != 16 {
		return Keys{}, fmt.Errorf("%w: auth", ErrInvalidKeys)
	}
	return Keys{P256dh: pub, Auth: a}, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}
