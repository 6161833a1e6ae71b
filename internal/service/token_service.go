package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims are embedded in every access token issued after sign-in.
type AccessClaims struct {
	Role      string `json:"role"`
	StudentID string `json:"student_id,omitempty"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// IssuedToken is a signed access token.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// TokenService signs access tokens for signed-in principals.
type TokenService interface {
	Issue(result LoginResult) (IssuedToken, error)
}

type tokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService constructs an HS256 token signer.
func NewTokenService(secret, issuer string, ttl time.Duration) (TokenService, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must be provided")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &tokenService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *tokenService) Issue(result LoginResult) (IssuedToken, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := AccessClaims{
		Role:      result.Role.String(),
		StudentID: result.StudentID,
		SessionID: result.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   result.IdentityID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: signed, ExpiresAt: expiresAt}, nil
}
