// Package redirect produces the signed token used for payment methods that
// cannot be embedded in an iframe: the browser is sent through a shared
// redirect page, and the token carries everything needed to resume the
// checkout session on return.
package redirect

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenTTL bounds how long a redirect token stays usable. A payer that
// parks on the gateway page for longer restarts checkout.
const tokenTTL = 2 * time.Hour

type Claims struct {
	Destination string `json:"dest"`
	OrderSecret string `json:"osec"`
	jwt.RegisteredClaims
}

type Signer struct {
	secret []byte
}

func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign wraps the gateway redirect URL and the order secret in a
// tamper-evident token.
func (s *Signer) Sign(destination, orderSecret string) (string, error) {
	if destination == "" {
		return "", errors.New("destination URL is empty")
	}

	now := time.Now()
	claims := Claims{
		Destination: destination,
		OrderSecret: orderSecret,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign redirect token: %w", err)
	}
	return signed, nil
}

// Verify decodes a token produced by Sign. The return HTTP handler calls
// this before resuming the session.
func (s *Signer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse redirect token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid redirect token")
	}
	return claims, nil
}
