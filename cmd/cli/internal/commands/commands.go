package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/loadboard/cmd/cli/internal/credentials"
	"github.com/wolfeidau/loadboard/internal/client"
)

type Globals struct {
	Debug   bool
	Version string

	// Stdout receives command output, os.Stdout when nil.
	Stdout io.Writer
}

func (g *Globals) out() io.Writer {
	if g == nil || g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

// StoreDir locates the credential store.
type StoreDir struct {
	CredentialsDir string `help:"Credentials directory (default: ~/.loadboard/credentials/)" env:"LOADBOARD_CREDENTIALS_DIR"`
}

func (d StoreDir) open() (*credentials.Store, error) {
	store, err := credentials.NewStore(d.CredentialsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential store: %w", err)
	}
	return store, nil
}

// ClientFlags select the server and the credential requests are signed with.
type ClientFlags struct {
	StoreDir   `embed:""`
	Server     string        `help:"Server URL" default:"http://localhost:8080" env:"LOADBOARD_SERVER"`
	Credential string        `help:"Credential to sign requests with (default credential when empty)" env:"LOADBOARD_CREDENTIAL"`
	Timeout    time.Duration `help:"Request timeout" default:"30s"`
}

func (f *ClientFlags) client() (*client.Client, *credentials.Credential, error) {
	store, err := f.open()
	if err != nil {
		return nil, nil, err
	}

	transport, err := credentials.NewAuthTransport(store, f.Credential, nil)
	if err != nil {
		return nil, nil, err
	}

	cred, err := store.Resolve(f.Credential)
	if err != nil {
		return nil, nil, err
	}

	return client.New(client.Config{
		ServerURL: f.Server,
		Timeout:   f.Timeout,
		Transport: transport,
	}), cred, nil
}

// orgClient returns a client and the organization to act on: orgID when set,
// otherwise the credential's own organization.
func (f *ClientFlags) orgClient(orgID string) (*client.Client, uuid.UUID, error) {
	api, cred, err := f.client()
	if err != nil {
		return nil, uuid.Nil, err
	}

	if orgID == "" && cred.HasIdentity() {
		orgID = cred.Identity.OrgID
	}
	id, err := uuid.Parse(orgID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("an organization id is required (--org-id or a credential identity): %w", err)
	}
	return api, id, nil
}
