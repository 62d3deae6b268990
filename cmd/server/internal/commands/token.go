package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/wolfeidau/loadboard/internal/auth"
)

// TokenCmd issues a development token signed with a local key.
type TokenCmd struct {
	SigningKeyFile string        `help:"PEM encoded ECDSA private key" required:"" env:"LOADBOARD_SIGNING_KEY_FILE"`
	Subject        string        `help:"subject (user id), random when empty" default:""`
	Email          string        `help:"email claim" required:""`
	OrgID          string        `help:"organization id claim" required:""`
	Role           string        `help:"role claim" default:"admin" enum:"admin,coadmin,driver"`
	Groups         []string      `help:"group claims, e.g. ${superuser_group}" default:""`
	TTL            time.Duration `help:"token lifetime" default:"1h"`
}

func (c *TokenCmd) Run(globals *Globals) error {
	key, err := os.ReadFile(c.SigningKeyFile)
	if err != nil {
		return fmt.Errorf("failed to read signing key: %w", err)
	}

	subject := c.Subject
	if subject == "" {
		subject = uuid.NewString()
	}

	claims := auth.Claims{
		Subject: subject,
		Email:   c.Email,
		OrgID:   c.OrgID,
		Role:    c.Role,
		Groups:  c.Groups,
	}

	// reject claims the server would refuse
	if _, err := auth.ResolveIdentity(claims); err != nil {
		return fmt.Errorf("invalid claims: %w", err)
	}

	token, err := auth.IssueToken(string(key), claims, c.TTL)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	fmt.Println(token)
	return nil
}
