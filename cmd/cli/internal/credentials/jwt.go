package credentials

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/loadboard/internal/auth"
)

// TokenExpiry is the duration after which a token expires.
const TokenExpiry = 1 * time.Hour

// JWTSigner creates and signs JWTs for API authentication.
type JWTSigner struct {
	store *Store
}

// NewJWTSigner creates a new JWT signer.
func NewJWTSigner(store *Store) *JWTSigner {
	return &JWTSigner{store: store}
}

// SignToken creates a signed JWT carrying the credential's identity.
// Returns an error if no identity has been set.
func (s *JWTSigner) SignToken(credName string) (string, error) {
	cred, err := s.store.Get(credName)
	if err != nil {
		return "", err
	}

	if !cred.HasIdentity() {
		return "", fmt.Errorf("%w: credential %q has no identity\n\n"+
			"To set one:\n"+
			"  loadboard-cli credentials identity %s --subject <USER_ID> --email <EMAIL> --org-id <ORG_ID> --role <ROLE>",
			ErrIdentityNotSet, credName, credName)
	}

	keyPEM, err := s.store.LoadPrivateKeyPEM(credName)
	if err != nil {
		return "", fmt.Errorf("failed to load private key: %w", err)
	}

	token, err := auth.IssueToken(keyPEM, cred.Identity.claims(), TokenExpiry)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	log.Debug().
		Str("credName", credName).
		Str("fingerprint", cred.Fingerprint).
		Str("subject", cred.Identity.Subject).
		Msg("signed JWT token")

	return token, nil
}
