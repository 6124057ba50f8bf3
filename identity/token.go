package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken signals a token that failed signature or claim checks.
	ErrInvalidToken = errors.New("identity: invalid token")
	// ErrMissingSecret signals a verifier or issuer built without a key.
	ErrMissingSecret = errors.New("identity: signing secret not configured")
)

type claims struct {
	OrganizationID string `json:"org"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 assertions from the identity provider.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses a bearer token (with or without the "Bearer " prefix) and
// returns the actor it asserts.
func (v *Verifier) Verify(token string) (Actor, error) {
	if len(v.secret) == 0 {
		return Actor{}, ErrMissingSecret
	}
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return Actor{}, ErrInvalidToken
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return Actor{}, ErrInvalidToken
	}

	actor := Actor{UserID: c.Subject, OrganizationID: c.OrganizationID}
	if actor.UserID == "" || actor.OrganizationID == "" {
		return Actor{}, fmt.Errorf("%w: missing sub or org claim", ErrInvalidToken)
	}
	return actor, nil
}

// Issuer mints tokens for local development and tests. Production tokens come
// from the identity provider.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

func (i *Issuer) Issue(a Actor) (string, error) {
	if len(i.secret) == 0 {
		return "", ErrMissingSecret
	}
	if err := a.Require(); err != nil {
		return "", err
	}
	now := i.now()
	c := claims{
		OrganizationID: a.OrganizationID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   a.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("identity: sign token: %w", err)
	}
	return signed, nil
}
