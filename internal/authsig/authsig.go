// Package authsig computes and verifies the HMAC-SHA256 signature used
// by the hello handshake (§4.3 "Authentication"). The secret is never
// transmitted or logged; only the user, key, nonce, timestamp, and the
// resulting MAC cross the wire.
package authsig

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Sign computes the hex MAC, keyed by secret, over user, key and nonce
// each followed by a zero byte, then ts as 8 big-endian bytes.
func Sign(secret, user, key, nonce string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(user))
	mac.Write([]byte{0})
	mac.Write([]byte(key))
	mac.Write([]byte{0})
	mac.Write([]byte(nonce))
	mac.Write([]byte{0})
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(ts))
	mac.Write(tsBuf[:])
	return fmt.Sprintf("%x", mac.Sum(nil))
}

// Verify reports whether mac is the correct signature for the given
// fields, using a constant-time comparison.
func Verify(secret, user, key, nonce string, ts int64, mac string) bool {
	want := Sign(secret, user, key, nonce, ts)
	return subtle.ConstantTimeCompare([]byte(want), []byte(mac)) == 1
}

// NewNonce returns a fresh random nonce for one hello attempt.
func NewNonce() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}
