// Package auth verifies the bearer tokens that identify policy users.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/upb/paylynx-policy/middleware"
	"github.com/upb/paylynx-policy/services"
)

// Claims is the token payload. The subject is the policy user id.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Config holds configuration for JWTValidator
type Config struct {
	Secret          string
	Issuer          string // checked when set
	AllowUnverified bool   // decode without a signature check when no secret is set
}

// JWTValidator validates HS256 bearer tokens. With no secret and
// AllowUnverified set it only decodes the payload, which is for local
// development against an external identity provider.
type JWTValidator struct {
	secret     []byte
	unverified bool
	parser     *jwt.Parser
	validator  *jwt.Validator
}

// NewJWTValidator creates a validator from config
func NewJWTValidator(cfg Config) (*JWTValidator, error) {
	if cfg.Secret == "" && !cfg.AllowUnverified {
		return nil, errors.New("jwt secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	return &JWTValidator{
		secret:     []byte(cfg.Secret),
		unverified: cfg.Secret == "",
		parser:     jwt.NewParser(opts...),
		validator:  jwt.NewValidator(opts...),
	}, nil
}

// Unverified reports whether signatures are skipped
func (v *JWTValidator) Unverified() bool {
	return v.unverified
}

// ValidateToken implements middleware.TokenValidator
func (v *JWTValidator) ValidateToken(_ context.Context, tokenString string) (*middleware.Claims, error) {
	claims := &Claims{}

	var err error
	if v.unverified {
		_, _, err = v.parser.ParseUnverified(tokenString, claims)
		if err == nil {
			err = v.validator.Validate(claims)
		}
	} else {
		_, err = v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
			return v.secret, nil
		})
	}
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, services.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", services.ErrInvalidToken, err)
	}

	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing sub claim", services.ErrInvalidToken)
	}

	out := &middleware.Claims{
		Sub:   claims.Subject,
		Email: claims.Email,
		Iss:   claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		out.Exp = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		out.Iat = claims.IssuedAt.Unix()
	}
	return out, nil
}
