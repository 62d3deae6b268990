package auth

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"net/http"

	"connectrpc.com/authn"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// Verifier checks a bearer token's signature and standard claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (jwt.MapClaims, error)
}

// StaticKeyVerifier verifies ES256 tokens against a single public key.
type StaticKeyVerifier struct {
	publicKey *ecdsa.PublicKey
	issuer    string
}

// NewStaticKeyVerifier creates a verifier from a PEM encoded ECDSA public key.
// An empty issuer disables the issuer check.
func NewStaticKeyVerifier(publicKeyPEM, issuer string) (*StaticKeyVerifier, error) {
	if publicKeyPEM == "" {
		return nil, errors.New("JWT public key not provided")
	}

	publicKey, err := jwt.ParseECPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, err
	}

	return &StaticKeyVerifier{publicKey: publicKey, issuer: issuer}, nil
}

// Verify parses and validates the token.
func (v *StaticKeyVerifier) Verify(_ context.Context, token string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.publicKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("token invalid")
	}

	return claims, nil
}

// ClaimsFromMap extracts the identity claims from verified token claims.
// Missing or mistyped claims are left empty for ResolveIdentity to reject.
func ClaimsFromMap(m jwt.MapClaims) Claims {
	str := func(key string) string {
		s, _ := m[key].(string)
		return s
	}

	return Claims{
		Subject: str(ClaimSubject),
		Email:   str(ClaimEmail),
		OrgID:   str(ClaimOrgID),
		Role:    str(ClaimRole),
		Groups:  parseStringSlice(m, ClaimGroups),
	}
}

// parseStringSlice reads a string array claim, tolerating a single string.
func parseStringSlice(m jwt.MapClaims, key string) []string {
	switch v := m[key].(type) {
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	case []string:
		return v
	case string:
		return []string{v}
	default:
		return nil
	}
}

// NewJWTAuthFunc returns an authn.AuthFunc that validates Bearer JWTs.
// On success the resolved *Identity is available via IdentityFromContext.
func NewJWTAuthFunc(v Verifier) authn.AuthFunc {
	return func(ctx context.Context, req *http.Request) (any, error) {
		if req.URL.Path == "/health" {
			return nil, nil
		}

		tokenStr, ok := authn.BearerToken(req)
		if !ok {
			return nil, authn.Errorf("missing bearer token")
		}

		claims, err := v.Verify(ctx, tokenStr)
		if err != nil {
			log.Debug().Err(err).Msg("JWT verification failed")
			return nil, authn.Errorf("invalid token")
		}

		id, err := ResolveIdentity(ClaimsFromMap(claims))
		if err != nil {
			log.Debug().Err(err).Msg("JWT claims rejected")
			return nil, authn.Errorf("invalid token claims")
		}

		return id, nil
	}
}

// IdentityFromContext returns the authenticated identity, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := authn.GetInfo(ctx).(*Identity)
	return id
}

// WithIdentity attaches an identity to ctx, as the authn middleware does.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return authn.SetInfo(ctx, id)
}
