package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/autoservis/autoservis/internal/shared"
)

const tokenIssuer = "autoservis"

// Claims carried by a bearer token. The token id is the session id.
type Claims struct {
	jwt.RegisteredClaims
}

// Tokens signs and verifies bearer tokens bound to sessions.
type Tokens struct {
	secret []byte
	clock  func() time.Time
}

// NewTokens constructs a token signer with the shared secret.
func NewTokens(secret string, clock func() time.Time) (*Tokens, error) {
	if secret == "" {
		return nil, errors.New("auth: token secret required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &Tokens{secret: []byte(secret), clock: clock}, nil
}

// Issue creates a signed token for the session.
func (t *Tokens) Issue(s Session) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.SessionID,
			Subject:   s.UserID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(s.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the token and returns the session and user it names.
func (t *Tokens) Parse(raw string) (sessionID, userID string, err error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(t.clock), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", shared.ErrSessionExpired
		}
		return "", "", shared.ErrSessionNotFound
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return "", "", shared.ErrSessionNotFound
	}
	return claims.ID, claims.Subject, nil
}
