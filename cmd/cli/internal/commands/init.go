package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/wolfeidau/loadboard/cmd/cli/internal/credentials"
)

// InitCmd generates or imports a signing credential.
type InitCmd struct {
	StoreDir   `embed:""`
	Name       string `arg:"" help:"Name for the credential (e.g., acme-dispatch)"`
	KeyFile    string `help:"Import an existing PEM encoded ECDSA P-256 private key instead of generating one" type:"existingfile"`
	SetDefault bool   `help:"Set as the default credential" default:"false"`
}

func (c *InitCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := c.open()
	if err != nil {
		return err
	}

	cred, err := c.create(store)
	if errors.Is(err, credentials.ErrCredentialExists) {
		return fmt.Errorf("credential %q already exists\n\nTo delete and recreate:\n  loadboard-cli credentials delete %s\n  loadboard-cli init %s", c.Name, c.Name, c.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to create credential: %w", err)
	}

	if c.SetDefault {
		if err := store.SetDefault(c.Name); err != nil {
			return fmt.Errorf("failed to set default: %w", err)
		}
	}

	publicKeyPEM, err := store.LoadPublicKeyPEM(c.Name)
	if err != nil {
		return fmt.Errorf("failed to load public key: %w", err)
	}

	out := globals.out()
	fmt.Fprintf(out, "Stored credential %s (fingerprint %s)\n\n", cred.Name, cred.Fingerprint)
	fmt.Fprintln(out, "This credential has no identity yet. Next steps:")
	fmt.Fprintln(out, "  1. Start the server with this public key (--auth-public-key-file)")
	fmt.Fprintf(out, "  2. loadboard-cli credentials identity %s --subject <USER_ID> --email <EMAIL> --org-id <ORG_ID> --role <ROLE>\n\n", c.Name)
	fmt.Fprint(out, publicKeyPEM)
	return nil
}

func (c *InitCmd) create(store *credentials.Store) (*credentials.Credential, error) {
	if c.KeyFile == "" {
		return store.Create(c.Name)
	}
	keyPEM, err := os.ReadFile(c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return store.Import(c.Name, keyPEM)
}
