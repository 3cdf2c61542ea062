package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid access token")

type claims struct {
	TenantID      string `json:"tid"`
	Role          Role   `json:"role"`
	PlatformAdmin bool   `json:"padm,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 access tokens carrying an Actor.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (i *Issuer) Issue(a Actor) (string, error) {
	now := i.now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		TenantID:      a.TenantID,
		Role:          a.Role,
		PlatformAdmin: a.PlatformAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.UID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}

	return signed, nil
}

func (i *Issuer) Parse(raw string) (Actor, error) {
	var c claims

	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if c.Subject == "" || c.TenantID == "" {
		return Actor{}, ErrInvalidToken
	}

	return Actor{
		TenantID:      c.TenantID,
		UID:           c.Subject,
		Role:          c.Role,
		PlatformAdmin: c.PlatformAdmin,
	}, nil
}
