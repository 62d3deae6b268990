package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gregjones/httpcache"
	"github.com/rs/zerolog/log"
)

// ErrNoKey is returned when no verification key matches the token.
var ErrNoKey = errors.New("no matching verification key")

// JWKSVerifier verifies tokens issued by an identity provider that publishes
// its signing keys as a JWKS document, such as a Cognito user pool.
type JWKSVerifier struct {
	jwksURL  string
	issuer   string
	audience string
	client   *http.Client
	ttl      time.Duration

	mu        sync.RWMutex
	keys      *jose.JSONWebKeySet
	expiresAt time.Time
}

// NewJWKSVerifier creates a verifier for the given JWKS URL. Responses are
// cached in memory honouring the provider's Cache-Control headers, and the
// parsed key set is kept for an hour.
func NewJWKSVerifier(jwksURL, issuer, audience string) *JWKSVerifier {
	return &JWKSVerifier{
		jwksURL:  jwksURL,
		issuer:   issuer,
		audience: audience,
		client: &http.Client{
			Transport: httpcache.NewTransport(httpcache.NewMemoryCache()),
			Timeout:   10 * time.Second,
		},
		ttl: time.Hour,
	}
}

// Verify parses and validates the token against the key named by its kid.
func (v *JWKSVerifier) Verify(ctx context.Context, token string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid header")
		}
		return v.key(ctx, kid)
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("token invalid")
	}

	return claims, nil
}

func (v *JWKSVerifier) key(ctx context.Context, kid string) (any, error) {
	v.mu.RLock()
	set, fresh := v.keys, time.Now().Before(v.expiresAt)
	v.mu.RUnlock()

	if set == nil || !fresh || len(set.Key(kid)) == 0 {
		var err error
		if set, err = v.refresh(ctx); err != nil {
			return nil, err
		}
	}

	for _, k := range set.Key(kid) {
		if !k.Valid() || !k.IsPublic() {
			continue
		}
		switch pub := k.Key.(type) {
		case *rsa.PublicKey, *ecdsa.PublicKey:
			return pub, nil
		}
	}

	return nil, fmt.Errorf("%w: kid %s", ErrNoKey, kid)
}

func (v *JWKSVerifier) refresh(ctx context.Context) (*jose.JSONWebKeySet, error) {
	log.Debug().Str("jwks_url", v.jwksURL).Msg("fetching JWKS")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS request failed: %s", resp.Status)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	v.mu.Lock()
	v.keys = &set
	v.expiresAt = time.Now().Add(v.ttl)
	v.mu.Unlock()

	log.Info().Int("total_keys", len(set.Keys)).Msg("cached JWKS")
	return &set, nil
}
