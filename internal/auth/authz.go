package auth

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/wolfeidau/loadboard/internal/apperr"
	"github.com/wolfeidau/loadboard/internal/keys"
	"github.com/wolfeidau/loadboard/internal/models"
)

// Action is the kind of access requested on a resource.
type Action string

const (
	ActionRead  Action = "read"
	ActionWrite Action = "write"
)

// Role sets used by the operation layer.
var (
	Managers   = []models.Role{models.RoleAdmin, models.RoleCoadmin}
	AdminsOnly = []models.Role{models.RoleAdmin}
	Members    = []models.Role{models.RoleAdmin, models.RoleCoadmin, models.RoleDriver}
)

// Assignable is a resource that may be owned by a single driver.
type Assignable interface {
	AssignedTo(subjectID string) bool
}

// hasRole is true when the identity's role, or any of its groups, is allowed.
func hasRole(id *Identity, allowed []models.Role) bool {
	if slices.Contains(allowed, id.Role) {
		return true
	}
	for g := range id.Groups {
		if slices.Contains(allowed, models.Role(g)) {
			return true
		}
	}
	return false
}

// RequireRole allows the identity when its role or one of its groups is in
// allowed.
func RequireRole(id *Identity, allowed ...models.Role) error {
	if id == nil {
		return apperr.Unauthenticated("no identity")
	}
	if hasRole(id, allowed) {
		return nil
	}
	return apperr.Forbidden("insufficient role", fmt.Sprintf("role %s, requires one of %v", id.Role, allowed))
}

// VerifyOrgAccess allows the identity into its own organization, or into any
// organization when it is a platform superuser.
func VerifyOrgAccess(id *Identity, orgID uuid.UUID) error {
	if id == nil {
		return apperr.Unauthenticated("no identity")
	}
	if id.OrgID == orgID || id.IsSuperuser() {
		return nil
	}
	return apperr.Forbidden("organization access denied", fmt.Sprintf("member of %s, requested %s", id.OrgID, orgID))
}

// RequireSuperuser allows only platform superusers.
func RequireSuperuser(id *Identity) error {
	if id == nil {
		return apperr.Unauthenticated("no identity")
	}
	if id.IsSuperuser() {
		return nil
	}
	return apperr.Forbidden("superuser required", "requires group "+SuperuserGroup)
}

// CanAccessResource decides resource-level access. Managers may act on any
// resource of their org. A driver may read or write only resources assigned
// to them; read and write are deliberately equal.
func CanAccessResource(id *Identity, res Assignable, action Action) bool {
	if id == nil || res == nil {
		return false
	}
	if hasRole(id, Managers) {
		return true
	}
	if id.Role == models.RoleDriver {
		return res.AssignedTo(id.SubjectID)
	}
	return false
}

// Authorize runs the role check and then the organization check. Resource
// ownership is checked separately with AuthorizeResource once the resource
// has been loaded.
func Authorize(id *Identity, orgID uuid.UUID, allowed ...models.Role) error {
	if err := RequireRole(id, allowed...); err != nil {
		return err
	}
	return VerifyOrgAccess(id, orgID)
}

// AuthorizeResource converts a CanAccessResource denial into a Forbidden error.
func AuthorizeResource(id *Identity, res Assignable, action Action) error {
	if id == nil {
		return apperr.Unauthenticated("no identity")
	}
	if CanAccessResource(id, res, action) {
		return nil
	}
	return apperr.Forbidden("not permitted to "+string(action)+" this resource", "resource not assigned to "+id.SubjectID)
}

// VerifyBlobKey checks a blob key lives under the organization's prefix.
func VerifyBlobKey(id *Identity, orgID uuid.UUID, key string) error {
	if err := VerifyOrgAccess(id, orgID); err != nil {
		return err
	}
	if !keys.BlobKeyBelongsToOrg(key, orgID) {
		return apperr.Forbidden("blob access denied", fmt.Sprintf("key %s outside org %s", key, orgID))
	}
	return nil
}
