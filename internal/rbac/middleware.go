package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/vialibre/vialibre/internal/platform/httpx"
	"github.com/vialibre/vialibre/internal/shared"
)

// PrincipalResolver turns the session user id into a Principal.
type PrincipalResolver interface {
	FindPrincipal(ctx context.Context, id string) (*Principal, error)
}

// DecisionCounter receives one verdict label per gated request.
type DecisionCounter interface {
	CountDecision(decision string)
}

// Gate is the single authorization entry point, mounted ahead of every
// protected route group. It composes session extraction, principal
// resolution and the evaluator into one verdict per request.
type Gate struct {
	Evaluator *Evaluator
	Resolver  PrincipalResolver
	Logger    *slog.Logger
	Metrics   DecisionCounter
}

// Protect wraps next with the authorization check. Verdict mapping:
// DenyUnauthenticated -> 401, Deny -> 403, store failure -> 503. On Allow the
// resolved principal is placed in the request context.
func (g Gate) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := g.resolve(r)
		if err != nil {
			g.logError("resolve principal", r, err)
			httpx.Error(w, http.StatusServiceUnavailable, httpx.CodeServerError, "authorization backend unavailable")
			return
		}

		decision, err := g.Evaluator.Authorize(r.Context(), principal, r.URL.Path, r.Method)
		if err != nil {
			g.logError("authorize", r, err)
			httpx.Error(w, http.StatusServiceUnavailable, httpx.CodeServerError, "authorization backend unavailable")
			return
		}

		if g.Metrics != nil {
			g.Metrics.CountDecision(decision.String())
		}
		switch decision {
		case Allow:
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		case DenyUnauthenticated:
			httpx.Error(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "authentication required")
		default:
			httpx.Error(w, http.StatusForbidden, httpx.CodeForbidden, "permission denied")
		}
	})
}

func (g Gate) resolve(r *http.Request) (*Principal, error) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		return nil, nil
	}
	return g.Resolver.FindPrincipal(r.Context(), sess.User())
}

func (g Gate) logError(msg string, r *http.Request, err error) {
	if g.Logger == nil {
		return
	}
	g.Logger.Error(msg, slog.String("path", r.URL.Path), slog.String("method", r.Method), slog.Any("error", err))
}
