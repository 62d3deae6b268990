package credentials

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mr-tron/base58"
)

// keyPair is an ES256 signing key in the encodings written to disk.
type keyPair struct {
	privatePEM  []byte
	publicPEM   []byte
	fingerprint string
}

func generateKey() (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// encodeKey marshals key as SEC1 and PKIX PEM. The fingerprint is the base58
// SHA-256 of the public key DER, the same value the server logs.
func encodeKey(key *ecdsa.PrivateKey) (*keyPair, error) {
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: ES256 needs a P-256 key", ErrInvalidPrivateKey)
	}

	privDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	sum := sha256.Sum256(pubDER)
	return &keyPair{
		privatePEM:  pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privDER}),
		publicPEM:   pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}),
		fingerprint: base58.Encode(sum[:]),
	}, nil
}

// parsePrivateKey accepts SEC1 ("EC PRIVATE KEY") and PKCS#8 ECDSA keys.
func parsePrivateKey(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidPrivateKey
	}

	var (
		key any
		err error
	)
	switch block.Type {
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrInvalidPrivateKey, block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}

	ecKey, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an ECDSA key", ErrInvalidPrivateKey)
	}
	return ecKey, nil
}

type keyFiles struct {
	private string
	public  string
}

func (s *Store) keyFiles(name string) keyFiles {
	return keyFiles{
		private: filepath.Join(s.baseDir, name+".key"),
		public:  filepath.Join(s.baseDir, name+".pub"),
	}
}

func (f keyFiles) write(kp *keyPair) error {
	if err := os.WriteFile(f.private, kp.privatePEM, 0600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	// #nosec G306 - the public key is handed to whoever runs the server
	if err := os.WriteFile(f.public, kp.publicPEM, 0644); err != nil {
		_ = os.Remove(f.private)
		return fmt.Errorf("failed to write public key: %w", err)
	}
	return nil
}

func (f keyFiles) remove() error {
	var errs []error
	for _, p := range []string{f.private, f.public} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func readKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	return data, nil
}
