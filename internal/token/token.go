// Package token signs and verifies the bearer tokens that authorize both
// bridge legs. Tokens are self-contained (payload + HMAC-SHA256 signature),
// so the relay can authenticate stateless CLI requests without a session
// store; security rests on expiry and secret confidentiality.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Scope is the class of operation a token authorizes.
type Scope string

const (
	// ScopeSession authorizes browser-side registration of one session.
	ScopeSession Scope = "session"
	// ScopeCLI authorizes operator-issued commands.
	ScopeCLI Scope = "cli"
)

// Default token lifetimes per scope.
const (
	SessionTokenTTL = 5 * time.Minute
	CLITokenTTL     = time.Hour
)

var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrInvalidPayload   = errors.New("invalid token payload")
	ErrTokenExpired     = errors.New("token expired")
	ErrScopeMismatch    = errors.New("token scope mismatch")
)

// Payload is the signed claim set carried by a token.
type Payload struct {
	TokenID   string `json:"tokenId"`
	Scope     Scope  `json:"scope"`
	Sub       string `json:"sub"`
	SessionID string `json:"sessionId,omitempty"`
	IssuedAt  int64  `json:"issuedAt"`
	ExpiresAt int64  `json:"expiresAt"`
}

var encoding = base64.RawURLEncoding

// Sign builds, encodes, and signs a token payload. sessionID may be empty
// for tokens not bound to a particular session.
func Sign(secret string, scope Scope, subject string, ttl time.Duration, sessionID string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("cannot sign token: empty secret")
	}
	now := time.Now().Unix()
	payload := Payload{
		TokenID:   uuid.New().String(),
		Scope:     scope,
		Sub:       subject,
		SessionID: sessionID,
		IssuedAt:  now,
		ExpiresAt: now + int64(ttl.Seconds()),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode token payload: %w", err)
	}
	encoded := encoding.EncodeToString(raw)
	return encoded + "." + signature(secret, encoded), nil
}

// Verify checks a token's signature, payload, and expiry. When
// expectedScope is non-empty the payload's scope must match it exactly.
func Verify(secret, token string, expectedScope Scope) (*Payload, error) {
	encoded, sig, found := strings.Cut(token, ".")
	if !found || encoded == "" || sig == "" {
		return nil, ErrMalformedToken
	}

	// Constant-time comparison; mismatched lengths are simply non-equal.
	expected := signature(secret, encoded)
	if len(sig) != len(expected) || subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) != 1 {
		return nil, ErrInvalidSignature
	}

	raw, err := encoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidPayload
	}
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.TokenID == "" || payload.ExpiresAt == 0 {
		return nil, ErrInvalidPayload
	}
	if time.Now().Unix() > payload.ExpiresAt {
		return nil, ErrTokenExpired
	}
	if expectedScope != "" && payload.Scope != expectedScope {
		return nil, ErrScopeMismatch
	}
	return &payload, nil
}

func signature(secret, encodedPayload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(encodedPayload))
	return encoding.EncodeToString(mac.Sum(nil))
}
