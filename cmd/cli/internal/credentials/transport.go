package credentials

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// AuthTransport signs each outgoing request with a short lived JWT for the
// configured credential.
type AuthTransport struct {
	signer   *JWTSigner
	credName string
	base     http.RoundTripper

	mu          sync.RWMutex
	cachedToken string
	tokenExpiry time.Time
}

// NewAuthTransport creates a transport that authenticates requests.
// credName is the credential to use (empty string uses default). A nil base
// uses http.DefaultTransport.
func NewAuthTransport(store *Store, credName string, base http.RoundTripper) (*AuthTransport, error) {
	cred, err := store.Resolve(credName)
	if err != nil {
		if errors.Is(err, ErrNoDefaultCredential) {
			return nil, fmt.Errorf("no credential specified and no default set\n\n" +
				"Either specify a credential with --credential or set a default:\n" +
				"  loadboard-cli credentials set-default <name>")
		}
		return nil, err
	}

	if base == nil {
		base = http.DefaultTransport
	}

	log.Debug().Str("credName", cred.Name).Msg("initialized auth transport")

	return &AuthTransport{
		signer:   NewJWTSigner(store),
		credName: cred.Name,
		base:     base,
	}, nil
}

// RoundTrip implements http.RoundTripper.
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	header, err := t.AuthorizationHeader()
	if err != nil {
		return nil, err
	}

	// RoundTrippers must not modify the caller's request
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", header)
	return t.base.RoundTrip(req)
}

// AuthorizationHeader returns the Authorization header value.
func (t *AuthTransport) AuthorizationHeader() (string, error) {
	token, err := t.getToken()
	if err != nil {
		return "", err
	}
	return "Bearer " + token, nil
}

// getToken returns a cached token or creates a new one.
func (t *AuthTransport) getToken() (string, error) {
	t.mu.RLock()
	if t.cachedToken != "" && time.Now().Add(5*time.Minute).Before(t.tokenExpiry) {
		token := t.cachedToken
		t.mu.RUnlock()
		return token, nil
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Double-check after acquiring write lock
	if t.cachedToken != "" && time.Now().Add(5*time.Minute).Before(t.tokenExpiry) {
		return t.cachedToken, nil
	}

	token, err := t.signer.SignToken(t.credName)
	if err != nil {
		return "", err
	}

	t.cachedToken = token
	t.tokenExpiry = time.Now().Add(TokenExpiry)

	log.Debug().
		Str("credName", t.credName).
		Time("expiry", t.tokenExpiry).
		Msg("cached new JWT token")

	return token, nil
}
