package auth

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wolfeidau/loadboard/internal/apperr"
	"github.com/wolfeidau/loadboard/internal/models"
)

// SuperuserGroup is the only group that crosses the organization boundary.
const SuperuserGroup = "platform-superuser"

// Claim names carried by identity provider tokens.
const (
	ClaimSubject = "sub"
	ClaimEmail   = "email"
	ClaimOrgID   = "custom:org_id"
	ClaimRole    = "custom:role"
	ClaimGroups  = "cognito:groups"
)

var validate = validator.New()

// Claims is the verified but not yet normalized claim set of a credential.
type Claims struct {
	Subject string
	Email   string
	OrgID   string
	Role    string
	Groups  []string
}

// GroupSet is a set of group names.
type GroupSet map[string]struct{}

// NewGroupSet builds a set, ignoring blank names.
func NewGroupSet(groups ...string) GroupSet {
	set := make(GroupSet, len(groups))
	for _, g := range groups {
		if g = strings.TrimSpace(g); g != "" {
			set[g] = struct{}{}
		}
	}
	return set
}

// Has reports whether the set contains name.
func (s GroupSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Identity is the normalized caller of an operation.
type Identity struct {
	SubjectID string
	Email     string
	OrgID     uuid.UUID
	Role      models.Role
	Groups    GroupSet
}

// IsSuperuser reports membership of the platform superuser group.
func (i *Identity) IsSuperuser() bool {
	return i.Groups.Has(SuperuserGroup)
}

// ResolveIdentity normalizes claims into an Identity. Absent or malformed
// claims are rejected with an Unauthenticated error.
func ResolveIdentity(c Claims) (*Identity, error) {
	subject := strings.TrimSpace(c.Subject)
	if subject == "" {
		return nil, apperr.Unauthenticated("missing subject claim")
	}

	email := strings.TrimSpace(c.Email)
	if err := validate.Var(email, "required,email"); err != nil {
		return nil, apperr.Unauthenticated("missing or malformed email claim")
	}

	orgID, err := uuid.Parse(strings.TrimSpace(c.OrgID))
	if err != nil || orgID == uuid.Nil {
		return nil, apperr.Unauthenticated("missing or malformed org claim")
	}

	role, err := models.ParseRole(strings.ToLower(strings.TrimSpace(c.Role)))
	if err != nil {
		return nil, apperr.Unauthenticated("unknown role claim")
	}

	return &Identity{
		SubjectID: subject,
		Email:     strings.ToLower(email),
		OrgID:     orgID,
		Role:      role,
		Groups:    NewGroupSet(c.Groups...),
	}, nil
}
