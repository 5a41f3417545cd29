package rbac

import (
	"context"
	"strings"
)

// Decision is the verdict of an authorization check. Deny and
// DenyUnauthenticated are ordinary outcomes, never errors.
type Decision int

const (
	// Deny means the principal holds no matching grant.
	Deny Decision = iota
	// Allow means at least one resource/permission combination authorizes
	// the action.
	Allow
	// DenyUnauthenticated means no authenticated principal was presented.
	// Callers should prompt re-authentication rather than report forbidden.
	DenyUnauthenticated
)

// String implements fmt.Stringer for log output.
func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case DenyUnauthenticated:
		return "deny-unauthenticated"
	default:
		return "deny"
	}
}

// Store is the entity-store view the evaluator needs: the distinct set of
// resources reachable from a principal through its roles, permissions
// preloaded. Duplicate resources reachable via multiple roles appear once.
type Store interface {
	ResourcesForPrincipal(ctx context.Context, principalID string) ([]Resource, error)
}

// Evaluator decides allow/deny for a principal, request path and HTTP method.
// It holds no mutable state; checks are read-only and safe to run
// concurrently against a shared store.
type Evaluator struct {
	store Store
}

// NewEvaluator constructs an Evaluator over the given store.
func NewEvaluator(store Store) *Evaluator {
	return &Evaluator{store: store}
}

// Authorize evaluates the request. The returned error is non-nil only when
// the entity store is unreachable (wrapped ErrStoreUnavailable); every normal
// deny path is a Decision, not an error.
//
// The scan is a pure existential check: iteration order over resources and
// permissions is unspecified and the first match wins, but whenever any
// combination would authorize the action the result is Allow.
func (e *Evaluator) Authorize(ctx context.Context, principal *Principal, path, method string) (Decision, error) {
	if principal == nil || !principal.Active {
		return DenyUnauthenticated, nil
	}
	if principal.Superuser {
		return Allow, nil
	}

	action, ok := ActionForMethod(method)
	if !ok {
		return Deny, nil
	}

	resources, err := e.store.ResourcesForPrincipal(ctx, principal.ID)
	if err != nil {
		return Deny, err
	}

	suffix := "." + string(action)
	for _, res := range resources {
		if !Matches(path, res) {
			continue
		}
		// Open-resource rule: a matched resource with no permission rows is
		// fully open to any principal holding it. This is a deliberate policy
		// of the source system, not default-deny waiting to happen.
		if len(res.Permissions) == 0 {
			return Allow, nil
		}
		for _, perm := range res.Permissions {
			if strings.HasSuffix(strings.ToLower(perm.Code), suffix) {
				return Allow, nil
			}
		}
	}
	return Deny, nil
}
