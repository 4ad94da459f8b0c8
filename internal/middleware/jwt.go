// Package middleware provides the HTTP middleware of the API server: bearer
// token authentication, request ids with access logging, and per-client rate
// limiting.
package middleware

import (
	"context"
	"fmt"
	"slices"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the identity claims of a validated token.
type Claims struct {
	Subject  string
	Issuer   string
	Audience []string
	Raw      map[string]interface{}
}

// Name returns the string claim named claim, falling back to the subject.
func (c *Claims) Name(claim string) string {
	if claim != "" {
		if v, ok := c.Raw[claim].(string); ok && v != "" {
			return v
		}
	}
	return c.Subject
}

// TokenValidator validates a bearer token.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*Claims, error)
}

// OIDCConfig configures token validation against an identity provider.
// JWKSURL skips discovery; IssuerURL alone uses .well-known discovery.
type OIDCConfig struct {
	IssuerURL      string
	JWKSURL        string
	Audience       string
	AllowedIssuers []string
}

// OIDCValidator verifies tokens with the provider's signing keys.
type OIDCValidator struct {
	verifier *oidc.IDTokenVerifier
	issuers  []string
}

// NewOIDCValidator builds a validator, performing discovery when no JWKS URL
// is configured.
func NewOIDCValidator(ctx context.Context, cfg OIDCConfig) (*OIDCValidator, error) {
	oc := &oidc.Config{ClientID: cfg.Audience, SkipClientIDCheck: cfg.Audience == ""}
	var verifier *oidc.IDTokenVerifier
	if cfg.JWKSURL != "" {
		verifier = oidc.NewVerifier(cfg.IssuerURL, oidc.NewRemoteKeySet(ctx, cfg.JWKSURL), oc)
	} else {
		if cfg.IssuerURL == "" {
			return nil, fmt.Errorf("oidc issuer URL or JWKS URL is required")
		}
		provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
		if err != nil {
			return nil, fmt.Errorf("oidc provider discovery: %w", err)
		}
		verifier = provider.Verifier(oc)
	}
	issuers := cfg.AllowedIssuers
	if len(issuers) == 0 && cfg.IssuerURL != "" {
		issuers = []string{cfg.IssuerURL}
	}
	return &OIDCValidator{verifier: verifier, issuers: issuers}, nil
}

// Validate verifies the token signature, expiry and audience.
func (v *OIDCValidator) Validate(ctx context.Context, token string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	if len(v.issuers) > 0 && !slices.Contains(v.issuers, idToken.Issuer) {
		return nil, fmt.Errorf("issuer %q not in allowed list", idToken.Issuer)
	}
	var raw map[string]interface{}
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	return &Claims{Subject: idToken.Subject, Issuer: idToken.Issuer, Audience: idToken.Audience, Raw: raw}, nil
}

// HS256Validator verifies tokens signed with a shared secret.
type HS256Validator struct {
	secret   []byte
	audience string
}

// NewHS256Validator creates a shared-secret validator. A non-empty audience
// must appear in the token's aud claim.
func NewHS256Validator(secret, audience string) (*HS256Validator, error) {
	if secret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	return &HS256Validator{secret: []byte(secret), audience: audience}, nil
}

// Validate verifies an HS256 token.
func (v *HS256Validator) Validate(_ context.Context, token string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	mc := jwt.MapClaims{}
	if _, err := jwt.ParseWithClaims(token, mc, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...); err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	c := &Claims{Raw: map[string]interface{}(mc)}
	c.Subject, _ = mc.GetSubject()
	c.Issuer, _ = mc.GetIssuer()
	if aud, err := mc.GetAudience(); err == nil {
		c.Audience = aud
	}
	return c, nil
}
