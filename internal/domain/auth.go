package domain

import "context"

// AuthRole represents a gateway client role.
type AuthRole string

const (
	AuthRoleAdmin  AuthRole = "admin"
	AuthRolePlayer AuthRole = "player"
	AuthRoleViewer AuthRole = "viewer"
)

// AllAuthRoles lists every valid authorization role for validation purposes.
var AllAuthRoles = []AuthRole{AuthRoleAdmin, AuthRolePlayer, AuthRoleViewer}

// Permission represents a granular action that can be authorized.
type Permission string

const (
	PermGameWatch Permission = "game:watch"     // connect, read state and snapshots
	PermGamePlay  Permission = "game:play"      // send input and change players
	PermAnalyze   Permission = "engine:analyze" // POST /api/analyze
	PermStatus    Permission = "server:status"  // GET /api/status
)

// RolePermissions maps each role to its granted permissions.
// Higher roles include all permissions of lower roles plus their own.
var RolePermissions = map[AuthRole][]Permission{
	AuthRoleAdmin:  {PermGameWatch, PermGamePlay, PermAnalyze, PermStatus},
	AuthRolePlayer: {PermGameWatch, PermGamePlay, PermAnalyze},
	AuthRoleViewer: {PermGameWatch},
}

// Authorizer checks whether the caller has a specific permission.
type Authorizer interface {
	Authorize(ctx context.Context, roles []AuthRole, perm Permission) error
}

type ctxKey string

const rolesCtxKey ctxKey = "roles"

// ContextWithRoles returns a new context carrying the given roles.
func ContextWithRoles(ctx context.Context, roles []AuthRole) context.Context {
	return context.WithValue(ctx, rolesCtxKey, roles)
}

// RolesFromContext extracts roles from the context.
// Returns nil if not set.
func RolesFromContext(ctx context.Context) []AuthRole {
	if v, ok := ctx.Value(rolesCtxKey).([]AuthRole); ok {
		return v
	}
	return nil
}

// IsValidAuthRole returns true if the given string represents a known role.
func IsValidAuthRole(s string) bool {
	for _, r := range AllAuthRoles {
		if string(r) == s {
			return true
		}
	}
	return false
}

// StringsToAuthRoles converts a string slice to an AuthRole slice,
// skipping any unrecognized values.
func StringsToAuthRoles(ss []string) []AuthRole {
	roles := make([]AuthRole, 0, len(ss))
	for _, s := range ss {
		if IsValidAuthRole(s) {
			roles = append(roles, AuthRole(s))
		}
	}
	return roles
}
