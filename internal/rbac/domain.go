// Package rbac implements the role/resource/permission authorization engine.
//
// Access is purely additive: a principal may perform an action when at least
// one resource reachable through its roles matches the request path and either
// carries no permission rows or carries a permission whose code ends with the
// action token. There are no deny rules.
package rbac

import (
	"strings"
	"time"
)

// Principal is the authenticated actor subject to authorization checks.
type Principal struct {
	ID        string
	Active    bool
	Superuser bool
	Staff     bool
}

// Role is a named bundle of resources assignable to principals.
type Role struct {
	ID          string
	Name        string
	Slug        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Resource is an administrative grouping representing a backend path prefix
// plus optional fine-grained permissions.
type Resource struct {
	ID           string
	Name         string
	Description  string
	Icon         string
	LinkFrontend string
	LinkBackend  string
	Permissions  []Permission
}

// Permission is a coded capability attachable to resources. Codes follow the
// wire contract `<namespace>.<action>`, lower-case and dot-separated.
type Permission struct {
	ID          string
	Code        string
	Name        string
	Description string
}

// UserRole links a principal to a role.
type UserRole struct {
	UserID     string
	RoleID     string
	AssignedAt time.Time
}

// RoleResource links a role to a resource.
type RoleResource struct {
	RoleID     string
	ResourceID string
	GrantedAt  time.Time
}

// Action is the token derived from the HTTP verb of a request.
type Action string

// Action tokens recognized by the evaluator and by permission code suffixes.
const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ActionForMethod maps an HTTP method to its action token. Safe methods map
// to view; unrecognized methods yield false and the request is denied.
func ActionForMethod(method string) (Action, bool) {
	switch strings.ToUpper(method) {
	case "GET", "HEAD", "OPTIONS":
		return ActionView, true
	case "POST":
		return ActionCreate, true
	case "PUT", "PATCH":
		return ActionUpdate, true
	case "DELETE":
		return ActionDelete, true
	default:
		return "", false
	}
}

// ValidPermissionCode reports whether code satisfies the wire contract:
// `<namespace>.<action>` with a non-empty namespace and a recognized action
// suffix. Permissions violating the contract would be unreachable by the
// evaluator, so writes enforce it up front.
func ValidPermissionCode(code string) bool {
	if code == "" || code != strings.ToLower(code) {
		return false
	}
	if strings.ContainsAny(code, " \t\n") {
		return false
	}
	idx := strings.LastIndex(code, ".")
	if idx <= 0 {
		return false
	}
	switch Action(code[idx+1:]) {
	case ActionView, ActionCreate, ActionUpdate, ActionDelete:
		return true
	default:
		return false
	}
}
