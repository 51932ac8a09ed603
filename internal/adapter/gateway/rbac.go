package gateway

import (
	"context"

	"muehle-agent/internal/domain"
	"muehle-agent/pkg/guestsdk"
)

// RBACAuthorizer implements domain.Authorizer using the static role-permission map.
type RBACAuthorizer struct{}

// Authorize checks if any of the given roles grants the specified permission.
// Returns domain.ErrForbidden if none of the roles have the permission.
func (RBACAuthorizer) Authorize(_ context.Context, roles []domain.AuthRole, perm domain.Permission) error {
	for _, role := range roles {
		for _, p := range domain.RolePermissions[role] {
			if p == perm {
				return nil
			}
		}
	}
	return domain.ErrForbidden
}

// rolesOf returns the known roles of a client. A client without any gets
// the player role.
func rolesOf(info *ClientInfo) []domain.AuthRole {
	roles := domain.StringsToAuthRoles(info.Roles)
	if len(roles) == 0 {
		return []domain.AuthRole{domain.AuthRolePlayer}
	}
	return roles
}

// watchMethods only read or render the session.
var watchMethods = map[string]bool{
	MethodState:           true,
	MethodSnapshot:        true,
	guestsdk.ExportFrame:  true,
	guestsdk.ExportResize: true,
	guestsdk.ExportMain:   true,
}

// methodPermission is the permission an RPC method requires.
func methodPermission(method string) domain.Permission {
	if watchMethods[method] {
		return domain.PermGameWatch
	}
	return domain.PermGamePlay
}
