package credentials

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	t.Run("creates directory with correct permissions", func(t *testing.T) {
		credDir := filepath.Join(t.TempDir(), "creds")

		store, err := NewStore(credDir)
		require.NoError(t, err)
		assert.NotNil(t, store)

		info, err := os.Stat(credDir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
		assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
	})

	t.Run("creates config.json on initialization", func(t *testing.T) {
		tmpDir := t.TempDir()
		store, err := NewStore(tmpDir)
		require.NoError(t, err)

		_, err = os.Stat(filepath.Join(tmpDir, "config.json"))
		require.NoError(t, err)

		cfg, err := store.loadConfig()
		require.NoError(t, err)
		assert.Equal(t, 1, cfg.Version)
		assert.Empty(t, cfg.DefaultCredential)
		assert.Empty(t, cfg.Credentials)
	})
}

func TestStore_Create(t *testing.T) {
	t.Run("generates valid keypair", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		require.NoError(t, err)

		cred, err := store.Create("dispatch")
		require.NoError(t, err)
		assert.Equal(t, "dispatch", cred.Name)
		assert.NotEmpty(t, cred.Fingerprint)
		assert.False(t, cred.HasIdentity())
		assert.False(t, cred.CreatedAt.IsZero())
	})

	t.Run("creates key files with correct permissions", func(t *testing.T) {
		tmpDir := t.TempDir()
		store, err := NewStore(tmpDir)
		require.NoError(t, err)

		_, err = store.Create("dispatch")
		require.NoError(t, err)

		info, err := os.Stat(filepath.Join(tmpDir, "dispatch.key"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

		info, err = os.Stat(filepath.Join(tmpDir, "dispatch.pub"))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
	})

	t.Run("fingerprint is base58 sha256 of public key", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		require.NoError(t, err)

		cred, err := store.Create("dispatch")
		require.NoError(t, err)

		publicKeyPEM, err := store.LoadPublicKeyPEM("dispatch")
		require.NoError(t, err)
		block, _ := pem.Decode([]byte(publicKeyPEM))
		require.NotNil(t, block)

		hash := sha256.Sum256(block.Bytes)
		assert.Equal(t, base58.Encode(hash[:]), cred.Fingerprint)
	})

	t.Run("sets as default when first credential", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		require.NoError(t, err)

		_, err = store.Create("first")
		require.NoError(t, err)
		_, err = store.Create("second")
		require.NoError(t, err)

		def, err := store.GetDefault()
		require.NoError(t, err)
		assert.Equal(t, "first", def.Name)
	})

	t.Run("returns error for duplicate name", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		require.NoError(t, err)

		_, err = store.Create("dispatch")
		require.NoError(t, err)

		_, err = store.Create("dispatch")
		assert.ErrorIs(t, err, ErrCredentialExists)
	})
}

func TestStore_Import(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pkcs8PEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	t.Run("imports a PKCS8 key", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		require.NoError(t, err)

		cred, err := store.Import("shared", pkcs8PEM)
		require.NoError(t, err)

		publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		require.NoError(t, err)
		hash := sha256.Sum256(publicDER)
		assert.Equal(t, base58.Encode(hash[:]), cred.Fingerprint)

		keyPEM, err := store.LoadPrivateKeyPEM("shared")
		require.NoError(t, err)
		assert.Contains(t, keyPEM, "EC PRIVATE KEY")
	})

	t.Run("rejects invalid PEM", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		require.NoError(t, err)

		_, err = store.Import("shared", []byte("not a key"))
		assert.ErrorIs(t, err, ErrInvalidPrivateKey)

		_, err = store.Get("shared")
		assert.ErrorIs(t, err, ErrCredentialNotFound)
	})
}

func TestStore_InvalidName(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "../escape", "a/b", ".hidden"} {
		_, err := store.Create(name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}

	creds, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, creds)
}

func TestStore_ImportRejectsOtherCurves(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Import("p384", pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}))
	assert.ErrorIs(t, err, ErrInvalidPrivateKey)
}

func TestStore_Resolve(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Resolve("")
	assert.ErrorIs(t, err, ErrNoDefaultCredential)

	_, err = store.Create("dispatch")
	require.NoError(t, err)

	cred, err := store.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, "dispatch", cred.Name)

	_, err = store.Resolve("missing")
	assert.ErrorIs(t, err, ErrCredentialNotFound)
}

func TestStore_List(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	creds, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, creds)

	for _, name := range []string{"yard", "dispatch", "driver"} {
		_, err := store.Create(name)
		require.NoError(t, err)
	}

	creds, err = store.List()
	require.NoError(t, err)
	require.Len(t, creds, 3)
	assert.Equal(t, "dispatch", creds[0].Name)
	assert.Equal(t, "driver", creds[1].Name)
	assert.Equal(t, "yard", creds[2].Name)
}

func TestStore_SetIdentity(t *testing.T) {
	t.Run("stores identity claims", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		require.NoError(t, err)

		created, err := store.Create("dispatch")
		require.NoError(t, err)

		require.NoError(t, store.SetIdentity("dispatch", testIdentity))

		cred, err := store.Get("dispatch")
		require.NoError(t, err)
		assert.True(t, cred.HasIdentity())
		assert.Equal(t, testIdentity.OrgID, cred.Identity.OrgID)
		assert.False(t, cred.UpdatedAt.Before(created.UpdatedAt))
	})

	t.Run("rejects claims the server would refuse", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		require.NoError(t, err)

		_, err = store.Create("dispatch")
		require.NoError(t, err)

		bad := testIdentity
		bad.OrgID = "not-a-uuid"
		require.Error(t, store.SetIdentity("dispatch", bad))

		bad = testIdentity
		bad.Role = "owner"
		require.Error(t, store.SetIdentity("dispatch", bad))
	})

	t.Run("returns error for non-existent credential", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		require.NoError(t, err)

		err = store.SetIdentity("missing", testIdentity)
		assert.ErrorIs(t, err, ErrCredentialNotFound)
	})
}

func TestStore_Delete(t *testing.T) {
	t.Run("removes credential and key files", func(t *testing.T) {
		tmpDir := t.TempDir()
		store, err := NewStore(tmpDir)
		require.NoError(t, err)

		_, err = store.Create("dispatch")
		require.NoError(t, err)

		require.NoError(t, store.Delete("dispatch"))

		_, err = store.Get("dispatch")
		assert.ErrorIs(t, err, ErrCredentialNotFound)

		_, err = os.Stat(filepath.Join(tmpDir, "dispatch.key"))
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(filepath.Join(tmpDir, "dispatch.pub"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("clears default if deleting default credential", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		require.NoError(t, err)

		_, err = store.Create("dispatch")
		require.NoError(t, err)
		require.NoError(t, store.Delete("dispatch"))

		_, err = store.GetDefault()
		assert.ErrorIs(t, err, ErrNoDefaultCredential)
	})

	t.Run("returns error for non-existent credential", func(t *testing.T) {
		store, err := NewStore(t.TempDir())
		require.NoError(t, err)

		assert.ErrorIs(t, store.Delete("missing"), ErrCredentialNotFound)
	})
}

func TestStore_SetDefault(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Create("first")
	require.NoError(t, err)
	_, err = store.Create("second")
	require.NoError(t, err)

	require.NoError(t, store.SetDefault("second"))

	def, err := store.GetDefault()
	require.NoError(t, err)
	assert.Equal(t, "second", def.Name)

	assert.ErrorIs(t, store.SetDefault("missing"), ErrCredentialNotFound)
}

func TestStore_LoadPrivateKeyPEM(t *testing.T) {
	t.Run("returns error for missing key file", func(t *testing.T) {
		tmpDir := t.TempDir()
		store, err := NewStore(tmpDir)
		require.NoError(t, err)

		_, err = store.Create("dispatch")
		require.NoError(t, err)
		require.NoError(t, os.Remove(filepath.Join(tmpDir, "dispatch.key")))

		_, err = store.LoadPrivateKeyPEM("dispatch")
		assert.ErrorIs(t, err, ErrCredentialNotFound)
	})

	t.Run("returns error for invalid key file", func(t *testing.T) {
		tmpDir := t.TempDir()
		store, err := NewStore(tmpDir)
		require.NoError(t, err)

		_, err = store.Create("dispatch")
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "dispatch.key"), []byte("garbage"), 0600))

		_, err = store.LoadPrivateKeyPEM("dispatch")
		assert.ErrorIs(t, err, ErrInvalidPrivateKey)
	})
}

func TestCredential_HasIdentity(t *testing.T) {
	tests := []struct {
		name     string
		cred     Credential
		expected bool
	}{
		{name: "no identity", cred: Credential{}, expected: false},
		{name: "missing org", cred: Credential{Identity: &Identity{Subject: "u-1"}}, expected: false},
		{name: "missing subject", cred: Credential{Identity: &Identity{OrgID: "o-1"}}, expected: false},
		{name: "complete", cred: Credential{Identity: &Identity{Subject: "u-1", OrgID: "o-1"}}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.cred.HasIdentity())
		})
	}
}
