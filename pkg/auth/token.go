package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/navikt/nada-socrata/pkg/service"
)

const issuer = "nada-socrata"

var ErrInvalidToken = errors.New("invalid actor token")

type actorClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 tokens carrying the actor.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func (s *Signer) Sign(actor *service.Actor) (string, error) {
	now := s.now()

	claims := actorClaims{
		Name: actor.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing actor token: %w", err)
	}

	return signed, nil
}

func (s *Signer) Parse(token string) (*service.Actor, error) {
	claims := &actorClaims{}

	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}

		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !parsed.Valid || claims.Subject == "" || !claims.VerifyIssuer(issuer, true) {
		return nil, ErrInvalidToken
	}

	return &service.Actor{
		ID:   claims.Subject,
		Name: claims.Name,
	}, nil
}

func NewSigner(secret string, ttl time.Duration) *Signer {
	return &Signer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// RootToken is the one-off secret that logs in as the root actor.
type RootToken struct {
	token string
}

func (t *RootToken) String() string {
	return t.token
}

func (t *RootToken) Matches(candidate string) bool {
	return candidate != "" && subtle.ConstantTimeCompare([]byte(candidate), []byte(t.token)) == 1
}

// NewRootToken uses the configured token, or a random one when empty.
func NewRootToken(configured string) *RootToken {
	if configured == "" {
		configured = uuid.NewString()
	}

	return &RootToken{
		token: configured,
	}
}
