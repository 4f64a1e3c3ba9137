// Package auth issues and verifies the HS256 tokens that guard admin operations.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/and161185/cookiepool/internal/errs"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "cookiepool"

// Tokens signs and verifies admin JWTs with a shared key.
type Tokens struct {
	signKey []byte
	ttl     time.Duration
	now     func() time.Time
}

// NewTokens constructs Tokens. An empty key disables verification entirely:
// every token is rejected.
func NewTokens(signKey []byte, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{signKey: signKey, ttl: ttl, now: time.Now}
}

// Enabled reports whether a signing key is configured.
func (t *Tokens) Enabled() bool { return t != nil && len(t.signKey) > 0 }

// Issue creates a signed token for a fresh admin subject.
func (t *Tokens) Issue() (string, time.Time, error) {
	if !t.Enabled() {
		return "", time.Time{}, errors.New("no signing key")
	}
	sub, err := uuid.NewV4()
	if err != nil {
		return "", time.Time{}, err
	}
	now := t.now()
	exp := now.Add(t.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   sub.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(t.signKey)
	return signed, exp, err
}

// Verify checks signature, issuer and expiry and returns the subject.
func (t *Tokens) Verify(tok string) (uuid.UUID, error) {
	if !t.Enabled() {
		return uuid.Nil, errs.ErrUnauthorized
	}
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(tk *jwt.Token) (any, error) {
		if tk.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return t.signKey, nil
	},
		jwt.WithLeeway(30*time.Second),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !parsed.Valid {
		return uuid.Nil, errs.ErrUnauthorized
	}

	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, errs.ErrUnauthorized
	}
	return id, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <t>" value.
func BearerToken(header string) (string, bool) {
	v := strings.TrimSpace(header)
	if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
		if t := strings.TrimSpace(v[7:]); t != "" {
			return t, true
		}
	}
	return "", false
}
