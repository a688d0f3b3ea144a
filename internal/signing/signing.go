// Package signing issues and checks HMAC form tokens. The upload form carries
// a random nonce, an expiry and their signature; the upload handler refuses
// anything that does not verify.
package signing

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Token is the hidden-field payload embedded in the upload form.
type Token struct {
	Nonce     string
	Expires   string
	Signature string
}

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner creates a Signer whose tokens live for ttl.
func NewSigner(secret []byte, ttl time.Duration) *Signer {
	return &Signer{secret: secret, ttl: ttl, now: time.Now}
}

// Sign returns the hex signature for nonce and expiry.
func (s *Signer) Sign(nonce string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%d", nonce, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}

// Issue mints a fresh token.
func (s *Signer) Issue() Token {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		buf = []byte(strconv.FormatInt(s.now().UnixNano(), 16))
	}
	nonce := hex.EncodeToString(buf)
	expires := s.now().Add(s.ttl).Unix()
	return Token{
		Nonce:     nonce,
		Expires:   strconv.FormatInt(expires, 10),
		Signature: s.Sign(nonce, expires),
	}
}

// Validate reports whether the token fields are authentic and unexpired.
func (s *Signer) Validate(nonce, expires, signature string) bool {
	if nonce == "" || signature == "" {
		return false
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	if time.Unix(exp, 0).Before(s.now()) {
		return false
	}
	expected := s.Sign(nonce, exp)
	return hmac.Equal([]byte(expected), []byte(signature))
}
