package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"
)

// cookieSigner signs cookie values with rotating HMAC keys. The first key
// signs; every key verifies, so old keys can be phased out without logging
// everyone out. With no keys configured it passes values through unsigned
// (development mode only, enforced by server.New).
type cookieSigner struct {
	keys [][]byte
}

func newCookieSigner(keys []string) *cookieSigner {
	signer := &cookieSigner{}
	for _, key := range keys {
		signer.keys = append(signer.keys, []byte(key))
	}
	return signer
}

func (s *cookieSigner) enabled() bool {
	return len(s.keys) > 0
}

// Sign returns value with its signature appended as "value.signature".
func (s *cookieSigner) Sign(value string) string {
	if !s.enabled() {
		return value
	}
	return value + "." + s.sign(s.keys[0], value)
}

// Verify splits a signed cookie value and checks its signature against all
// configured keys. Returns the bare value and whether it verified.
func (s *cookieSigner) Verify(signed string) (string, bool) {
	if !s.enabled() {
		return signed, true
	}

	idx := strings.LastIndexByte(signed, '.')
	if idx < 0 {
		return "", false
	}
	value, signature := signed[:idx], signed[idx+1:]
	for _, key := range s.keys {
		expected := s.sign(key, value)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1 {
			return value, true
		}
	}
	return "", false
}

func (s *cookieSigner) sign(key []byte, value string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(value))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
