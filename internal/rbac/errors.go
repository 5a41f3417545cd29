package rbac

import "errors"

// ErrStoreUnavailable wraps infrastructure failures reaching the entity
// store. It is deliberately distinct from a deny verdict: silently denying on
// an outage would be indistinguishable from policy, so the gate surfaces it
// as a server error instead of a 403.
var ErrStoreUnavailable = errors.New("rbac: store unavailable")
