package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTTL is the default session token lifetime
	DefaultTTL = 24 * time.Hour
)

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrEmptySecret  = errors.New("token secret must not be empty")
)

// Claims are the JWT claims carried by a wallet session token.
// Subject is the lowercase wallet address, ID the session id.
type Claims struct {
	jwtlib.RegisteredClaims
}

// Issued describes a freshly minted session token
type Issued struct {
	Token     string
	SessionID string
	Address   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Manager issues and parses HS256 session tokens
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration

	// Now returns the current time. It can be overridden in tests.
	Now func() time.Time
}

// NewManager creates a token manager
func NewManager(secret, issuer string, ttl time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		Now:    time.Now,
	}, nil
}

// Issue signs a new session token for address
func (m *Manager) Issue(address string) (*Issued, error) {
	now := m.Now().UTC().Truncate(time.Second)
	issued := &Issued{
		SessionID: uuid.New().String(),
		Address:   strings.ToLower(address),
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}

	claims := Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   issued.Address,
			ID:        issued.SessionID,
			IssuedAt:  jwtlib.NewNumericDate(issued.IssuedAt),
			ExpiresAt: jwtlib.NewNumericDate(issued.ExpiresAt),
		},
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}
	issued.Token = signed
	return issued, nil
}

// Parse validates signature, issuer and expiry and returns the claims
func (m *Manager) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwtlib.ParseWithClaims(raw, claims,
		func(t *jwtlib.Token) (any, error) { return m.secret, nil },
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(m.issuer),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(m.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
