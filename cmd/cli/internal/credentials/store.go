// Package credentials keeps development signing keys and the identity each
// one asserts, so the CLI can mint bearer tokens for a server running in
// static key mode.
package credentials

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/loadboard/internal/auth"
)

var (
	ErrCredentialNotFound  = errors.New("credential not found")
	ErrCredentialExists    = errors.New("credential already exists")
	ErrIdentityNotSet      = errors.New("credential identity not set")
	ErrNoDefaultCredential = errors.New("no default credential set")
	ErrInvalidPrivateKey   = errors.New("invalid private key")
	ErrInvalidName         = errors.New("invalid credential name")
)

// names become file names in the store directory
var validName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)

const configFile = "config.json"

// Identity holds the claims a credential signs into its tokens.
type Identity struct {
	Subject string   `json:"subject"`
	Email   string   `json:"email"`
	OrgID   string   `json:"org_id"`
	Role    string   `json:"role"`
	Groups  []string `json:"groups,omitempty"`
}

func (i Identity) claims() auth.Claims {
	return auth.Claims{
		Subject: i.Subject,
		Email:   i.Email,
		OrgID:   i.OrgID,
		Role:    i.Role,
		Groups:  i.Groups,
	}
}

// Credential is a stored signing key with the identity it asserts.
type Credential struct {
	Name        string    `json:"name"`
	Fingerprint string    `json:"fingerprint"`
	Identity    *Identity `json:"identity,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasIdentity reports whether tokens can be signed with this credential.
func (c *Credential) HasIdentity() bool {
	return c.Identity != nil && c.Identity.Subject != "" && c.Identity.OrgID != ""
}

// Config is the on-disk index of credentials.
type Config struct {
	Version           int                   `json:"version"`
	DefaultCredential string                `json:"default_credential,omitempty"`
	Credentials       map[string]Credential `json:"credentials"`
}

// Store keeps credentials under one directory: config.json plus a
// <name>.key and <name>.pub per credential.
type Store struct {
	baseDir string
	now     func() time.Time
}

// NewStore opens the store in baseDir, defaulting to ~/.loadboard/credentials.
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".loadboard", "credentials")
	}

	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create credentials directory: %w", err)
	}

	s := &Store{baseDir: baseDir, now: func() time.Time { return time.Now().UTC() }}

	if _, err := os.Stat(s.configPath()); errors.Is(err, os.ErrNotExist) {
		if err := s.saveConfig(&Config{Version: 1, Credentials: map[string]Credential{}}); err != nil {
			return nil, err
		}
	}

	log.Debug().Str("baseDir", baseDir).Msg("credential store opened")
	return s, nil
}

// Create generates a P-256 keypair. Its public key is what the server is
// started with in static verification mode.
func (s *Store) Create(name string) (*Credential, error) {
	key, err := generateKey()
	if err != nil {
		return nil, err
	}
	return s.add(name, key)
}

// Import stores an existing ECDSA private key, for example one a shared
// development server already trusts.
func (s *Store) Import(name string, privateKeyPEM []byte) (*Credential, error) {
	key, err := parsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, err
	}
	return s.add(name, key)
}

// Get returns the named credential.
func (s *Store) Get(name string) (*Credential, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}
	cred, ok := cfg.Credentials[name]
	if !ok {
		return nil, ErrCredentialNotFound
	}
	return &cred, nil
}

// GetDefault returns the default credential or ErrNoDefaultCredential.
func (s *Store) GetDefault() (*Credential, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.DefaultCredential == "" {
		return nil, ErrNoDefaultCredential
	}
	return s.Get(cfg.DefaultCredential)
}

// Resolve returns the named credential, or the default when name is empty.
func (s *Store) Resolve(name string) (*Credential, error) {
	if name == "" {
		return s.GetDefault()
	}
	return s.Get(name)
}

// List returns all credentials ordered by name.
func (s *Store) List() ([]Credential, error) {
	cfg, err := s.loadConfig()
	if err != nil {
		return nil, err
	}

	creds := make([]Credential, 0, len(cfg.Credentials))
	for _, c := range cfg.Credentials {
		creds = append(creds, c)
	}
	slices.SortFunc(creds, func(a, b Credential) int { return strings.Compare(a.Name, b.Name) })
	return creds, nil
}

// SetIdentity replaces the claims signed into the credential's tokens.
// Claims the server would reject are refused here.
func (s *Store) SetIdentity(name string, identity Identity) error {
	if _, err := auth.ResolveIdentity(identity.claims()); err != nil {
		return fmt.Errorf("invalid identity: %w", err)
	}

	err := s.update(func(cfg *Config) error {
		cred, ok := cfg.Credentials[name]
		if !ok {
			return ErrCredentialNotFound
		}
		cred.Identity = &identity
		cred.UpdatedAt = s.now()
		cfg.Credentials[name] = cred
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("name", name).
		Str("subject", identity.Subject).
		Str("orgID", identity.OrgID).
		Str("role", identity.Role).
		Msg("credential identity updated")
	return nil
}

// Delete removes a credential and its key files, clearing the default if it
// pointed here.
func (s *Store) Delete(name string) error {
	err := s.update(func(cfg *Config) error {
		if _, ok := cfg.Credentials[name]; !ok {
			return ErrCredentialNotFound
		}
		if err := s.keyFiles(name).remove(); err != nil {
			return fmt.Errorf("failed to remove key files: %w", err)
		}
		delete(cfg.Credentials, name)
		if cfg.DefaultCredential == name {
			cfg.DefaultCredential = ""
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().Str("name", name).Msg("credential deleted")
	return nil
}

// SetDefault makes name the credential used when none is given.
func (s *Store) SetDefault(name string) error {
	return s.update(func(cfg *Config) error {
		if _, ok := cfg.Credentials[name]; !ok {
			return ErrCredentialNotFound
		}
		cfg.DefaultCredential = name
		return nil
	})
}

// LoadPrivateKeyPEM returns the signing key, checking it still parses.
func (s *Store) LoadPrivateKeyPEM(name string) (string, error) {
	if _, err := s.Get(name); err != nil {
		return "", err
	}
	data, err := readKeyFile(s.keyFiles(name).private)
	if err != nil {
		return "", err
	}
	if _, err := parsePrivateKey(data); err != nil {
		return "", err
	}
	return string(data), nil
}

// LoadPublicKeyPEM returns the public key to configure the server with.
func (s *Store) LoadPublicKeyPEM(name string) (string, error) {
	if _, err := s.Get(name); err != nil {
		return "", err
	}
	data, err := readKeyFile(s.keyFiles(name).public)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// add writes the key files and registers the credential. The first
// credential becomes the default.
func (s *Store) add(name string, key *ecdsa.PrivateKey) (*Credential, error) {
	if !validName.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if _, err := s.Get(name); err == nil {
		return nil, ErrCredentialExists
	}

	kp, err := encodeKey(key)
	if err != nil {
		return nil, err
	}

	files := s.keyFiles(name)
	if err := files.write(kp); err != nil {
		return nil, err
	}

	now := s.now()
	cred := Credential{Name: name, Fingerprint: kp.fingerprint, CreatedAt: now, UpdatedAt: now}

	err = s.update(func(cfg *Config) error {
		cfg.Credentials[name] = cred
		if cfg.DefaultCredential == "" {
			cfg.DefaultCredential = name
		}
		return nil
	})
	if err != nil {
		_ = files.remove()
		return nil, err
	}

	log.Info().
		Str("name", name).
		Str("fingerprint", kp.fingerprint).
		Str("publicKeyPath", files.public).
		Msg("credential stored")

	return &cred, nil
}

func (s *Store) configPath() string {
	return filepath.Join(s.baseDir, configFile)
}

// update applies fn to the config and saves it when fn succeeds.
func (s *Store) update(fn func(*Config) error) error {
	cfg, err := s.loadConfig()
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	return s.saveConfig(cfg)
}

func (s *Store) loadConfig() (*Config, error) {
	data, err := os.ReadFile(s.configPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Credentials == nil {
		cfg.Credentials = map[string]Credential{}
	}
	return &cfg, nil
}

// saveConfig replaces the config file atomically.
func (s *Store) saveConfig(cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp := s.configPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, s.configPath()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}
