package ctrader

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"

	"github.com/thiagosquair/trading-journal-platform-sub003/internal/platform"
)

// DefaultStateTTL bounds how long an authorization may take.
const DefaultStateTTL = 10 * time.Minute

// ErrInvalidState is returned for state tokens that are malformed, forged or expired.
var ErrInvalidState = errors.New("invalid oauth state")

// StateClaims travel through the OAuth redirect as the signed state parameter.
type StateClaims struct {
	Environment string `json:"env"`
	ClientID    string `json:"client_id"`
	Nonce       string `json:"nonce"`
	jwt.StandardClaims
}

func (c StateClaims) Valid() error {
	if err := c.StandardClaims.Valid(); err != nil {
		return err
	}
	if c.Nonce == "" {
		return errors.New("state carries no nonce")
	}
	if _, err := platform.ParseEnvironment(c.Environment); err != nil {
		return err
	}
	return nil
}

// StateSigner issues and verifies HS256 state tokens.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewStateSigner creates a signer. ttl <= 0 selects DefaultStateTTL.
func NewStateSigner(secret []byte, ttl time.Duration) *StateSigner {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateSigner{secret: secret, ttl: ttl}
}

// TTL is the lifetime of issued tokens.
func (s *StateSigner) TTL() time.Duration { return s.ttl }

// Issue signs a new state for env and clientID with a fresh nonce.
func (s *StateSigner) Issue(env platform.Environment, clientID string) (string, StateClaims, error) {
	now := time.Now()
	claims := StateClaims{
		Environment: string(env),
		ClientID:    clientID,
		Nonce:       uuid.NewString(),
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(s.ttl).Unix(),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", StateClaims{}, fmt.Errorf("sign state: %w", err)
	}
	return token, claims, nil
}

// Verify checks the signature and expiry of a state token and returns its claims.
func (s *StateSigner) Verify(state string) (*StateClaims, error) {
	claims := &StateClaims{}
	token, err := jwt.ParseWithClaims(state, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if !token.Valid {
		return nil, ErrInvalidState
	}
	return claims, nil
}
