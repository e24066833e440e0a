package principal

import "github.com/lablane/procure/internal/entity"

// RoleAdmin marks principals allowed to manage organization-scoped resources.
const RoleAdmin = "ADMIN"

// Principal is the already-authenticated caller identity handed to the core
// by the external auth layer. The core only performs authorization checks
// against it, never authentication.
type Principal struct {
	UserID         int64
	OrganizationID *int64
	Role           string
}

// IsAdmin reports whether the caller holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Scope returns the budget scope the caller operates under: the organization
// when they belong to one, otherwise their personal scope.
func (p Principal) Scope() entity.Scope {
	return entity.Scope{UserID: p.UserID, OrganizationID: p.OrganizationID}
}
