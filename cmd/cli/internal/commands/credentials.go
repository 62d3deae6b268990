package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/wolfeidau/loadboard/cmd/cli/internal/credentials"
)

// CredentialsCmd manages local signing credentials.
type CredentialsCmd struct {
	List       CredentialsListCmd       `cmd:"" help:"List all credentials"`
	Show       CredentialsShowCmd       `cmd:"" help:"Show credential details and public key"`
	Identity   CredentialsIdentityCmd   `cmd:"" help:"Set the identity a credential signs into its tokens"`
	Token      CredentialsTokenCmd      `cmd:"" help:"Print a bearer token, e.g. for curl"`
	Delete     CredentialsDeleteCmd     `cmd:"" help:"Delete a credential"`
	SetDefault CredentialsSetDefaultCmd `cmd:"" name:"set-default" help:"Set the default credential"`
}

// lookup opens the store and fetches name with a hint when it is missing.
func lookup(dir StoreDir, name string) (*credentials.Store, *credentials.Credential, error) {
	store, err := dir.open()
	if err != nil {
		return nil, nil, err
	}
	cred, err := store.Get(name)
	if errors.Is(err, credentials.ErrCredentialNotFound) {
		return nil, nil, fmt.Errorf("credential %q not found\n\nRun 'loadboard-cli credentials list' to see available credentials", name)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return store, cred, nil
}

type CredentialsListCmd struct {
	StoreDir `embed:""`
}

func (c *CredentialsListCmd) Run(ctx context.Context, globals *Globals) error {
	out := globals.out()

	store, err := c.open()
	if err != nil {
		return err
	}

	creds, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}

	if len(creds) == 0 {
		fmt.Fprintln(out, "No credentials found.")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "To create one:")
		fmt.Fprintln(out, "  loadboard-cli init <name>")
		return nil
	}

	var defaultName string
	if def, _ := store.GetDefault(); def != nil {
		defaultName = def.Name
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tEMAIL\tROLE\tORG\tFINGERPRINT\tDEFAULT")
	for _, cred := range creds {
		email, role, org := "-", "-", "-"
		if cred.HasIdentity() {
			email, role, org = cred.Identity.Email, cred.Identity.Role, cred.Identity.OrgID
		}
		mark := ""
		if cred.Name == defaultName {
			mark = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", cred.Name, email, role, org, shortFingerprint(cred.Fingerprint), mark)
	}
	return w.Flush()
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12] + "..."
	}
	return fp
}

type CredentialsShowCmd struct {
	StoreDir `embed:""`
	Name     string `arg:"" help:"Credential name"`
}

func (c *CredentialsShowCmd) Run(ctx context.Context, globals *Globals) error {
	store, cred, err := lookup(c.StoreDir, c.Name)
	if err != nil {
		return err
	}

	publicKeyPEM, err := store.LoadPublicKeyPEM(c.Name)
	if err != nil {
		return fmt.Errorf("failed to load public key: %w", err)
	}

	out := globals.out()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Name:\t%s\n", cred.Name)
	fmt.Fprintf(w, "Fingerprint:\t%s\n", cred.Fingerprint)
	if cred.HasIdentity() {
		id := cred.Identity
		fmt.Fprintf(w, "Subject:\t%s\n", id.Subject)
		fmt.Fprintf(w, "Email:\t%s\n", id.Email)
		fmt.Fprintf(w, "Organization:\t%s\n", id.OrgID)
		fmt.Fprintf(w, "Role:\t%s\n", id.Role)
		if len(id.Groups) > 0 {
			fmt.Fprintf(w, "Groups:\t%s\n", strings.Join(id.Groups, ", "))
		}
	} else {
		fmt.Fprintf(w, "Identity:\tnot set\n")
	}
	fmt.Fprintf(w, "Created:\t%s\n", cred.CreatedAt.Format(time.DateTime))
	fmt.Fprintf(w, "Updated:\t%s\n", cred.UpdatedAt.Format(time.DateTime))
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprint(out, publicKeyPEM)
	return nil
}

// CredentialsIdentityCmd sets the claims a credential asserts.
type CredentialsIdentityCmd struct {
	StoreDir `embed:""`
	Name     string   `arg:"" help:"Credential name"`
	Subject  string   `help:"User ID the tokens are issued for" required:""`
	Email    string   `help:"Email claim" required:""`
	OrgID    string   `help:"Organization ID claim" required:""`
	Role     string   `help:"Role claim" default:"admin" enum:"admin,coadmin,driver"`
	Groups   []string `help:"Group claims, e.g. ${superuser_group}"`
}

func (c *CredentialsIdentityCmd) Run(ctx context.Context, globals *Globals) error {
	store, _, err := lookup(c.StoreDir, c.Name)
	if err != nil {
		return err
	}

	err = store.SetIdentity(c.Name, credentials.Identity{
		Subject: c.Subject,
		Email:   c.Email,
		OrgID:   c.OrgID,
		Role:    c.Role,
		Groups:  c.Groups,
	})
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}

	out := globals.out()
	fmt.Fprintf(out, "Credential %q now signs as %s (%s) in organization %s.\n", c.Name, c.Email, c.Role, c.OrgID)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Try it:\n  loadboard-cli loads list --credential %s\n", c.Name)
	return nil
}

// CredentialsTokenCmd prints a signed token for use outside the CLI.
type CredentialsTokenCmd struct {
	StoreDir `embed:""`
	Name     string `arg:"" optional:"" help:"Credential name (default credential when empty)"`
}

func (c *CredentialsTokenCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := c.open()
	if err != nil {
		return err
	}

	cred, err := store.Resolve(c.Name)
	if err != nil {
		return fmt.Errorf("failed to resolve credential: %w", err)
	}

	token, err := credentials.NewJWTSigner(store).SignToken(cred.Name)
	if err != nil {
		return err
	}

	fmt.Fprintln(globals.out(), token)
	return nil
}

type CredentialsDeleteCmd struct {
	StoreDir `embed:""`
	Name     string `arg:"" help:"Credential name"`
	Force    bool   `help:"Skip confirmation" default:"false"`
}

func (c *CredentialsDeleteCmd) Run(ctx context.Context, globals *Globals) error {
	store, cred, err := lookup(c.StoreDir, c.Name)
	if err != nil {
		return err
	}

	out := globals.out()
	if !c.Force && cred.HasIdentity() {
		fmt.Fprintf(out, "Credential %q signs tokens for %s and the key cannot be recovered.\n", c.Name, cred.Identity.Email)
		fmt.Fprint(out, "Continue? [y/N]: ")

		var response string
		_, _ = fmt.Scanln(&response)
		if !strings.EqualFold(response, "y") {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	if err := store.Delete(c.Name); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	fmt.Fprintf(out, "Credential %q deleted.\n", c.Name)
	return nil
}

type CredentialsSetDefaultCmd struct {
	StoreDir `embed:""`
	Name     string `arg:"" help:"Credential name"`
}

func (c *CredentialsSetDefaultCmd) Run(ctx context.Context, globals *Globals) error {
	store, _, err := lookup(c.StoreDir, c.Name)
	if err != nil {
		return err
	}

	if err := store.SetDefault(c.Name); err != nil {
		return fmt.Errorf("failed to set default: %w", err)
	}

	fmt.Fprintf(globals.out(), "Default credential set to %q.\n", c.Name)
	return nil
}
