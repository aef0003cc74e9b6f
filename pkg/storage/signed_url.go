package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidLink covers malformed, tampered and expired download tokens.
var ErrInvalidLink = errors.New("storage: invalid download link")

// Link is the verified content of a download token.
type Link struct {
	Subject   string
	Path      string
	ExpiresAt time.Time
}

type linkClaims struct {
	Path string `json:"path"`
	jwt.RegisteredClaims
}

// LinkSigner issues short-lived download tokens for stored files.
type LinkSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewLinkSigner constructs a signer with the provided secret and TTL.
func NewLinkSigner(secret string, ttl time.Duration) *LinkSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &LinkSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a token naming subject and the stored path.
func (s *LinkSigner) Sign(subject, path string) (string, time.Time, error) {
	if subject == "" || path == "" {
		return "", time.Time{}, fmt.Errorf("subject and path required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	issuedAt := s.now()
	expiresAt := issuedAt.Add(s.ttl)
	claims := linkClaims{
		Path: path,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign download link: %w", err)
	}
	return token, expiresAt.Truncate(time.Second), nil
}

// Verify checks the signature and expiry of token.
func (s *LinkSigner) Verify(token string) (*Link, error) {
	claims := &linkClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	if claims.Subject == "" || claims.Path == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidLink
	}
	return &Link{Subject: claims.Subject, Path: claims.Path, ExpiresAt: claims.ExpiresAt.Time}, nil
}
