package rbac_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vialibre/vialibre/internal/rbac"
	"github.com/vialibre/vialibre/internal/shared"
)

type stubResolver struct {
	principal *rbac.Principal
	err       error
}

func (s *stubResolver) FindPrincipal(ctx context.Context, id string) (*rbac.Principal, error) {
	return s.principal, s.err
}

type countingMetrics struct {
	decisions []string
}

func (c *countingMetrics) CountDecision(decision string) {
	c.decisions = append(c.decisions, decision)
}

func gatedRequest(t *testing.T, gate rbac.Gate, userID string) *httptest.ResponseRecorder {
	t.Helper()
	var sawPrincipal *rbac.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawPrincipal = rbac.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/rutas/rutas", nil)
	sess := &shared.Session{}
	if userID != "" {
		sess.SetUser(userID)
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	gate.Protect(next).ServeHTTP(res, req)
	if res.Code == http.StatusOK {
		require.NotNil(t, sawPrincipal, "allowed request must carry the principal")
	}
	return res
}

func decodeEnvelope(t *testing.T, res *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
		Code   string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	return body.Code, body.Detail
}

func TestGateAllow(t *testing.T) {
	metrics := &countingMetrics{}
	gate := rbac.Gate{
		Evaluator: rbac.NewEvaluator(&stubStore{resources: []rbac.Resource{resourceWith("/api/rutas")}}),
		Resolver:  &stubResolver{principal: activePrincipal()},
		Metrics:   metrics,
	}

	res := gatedRequest(t, gate, "u1")
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, []string{"allow"}, metrics.decisions)
}

func TestGateUnauthenticated(t *testing.T) {
	gate := rbac.Gate{
		Evaluator: rbac.NewEvaluator(&stubStore{}),
		Resolver:  &stubResolver{},
	}

	res := gatedRequest(t, gate, "")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	code, _ := decodeEnvelope(t, res)
	assert.Equal(t, "unauthorized", code)
}

func TestGateDeletedAccount(t *testing.T) {
	// Session points at a user that no longer exists: treated as
	// unauthenticated, not as an outage.
	gate := rbac.Gate{
		Evaluator: rbac.NewEvaluator(&stubStore{}),
		Resolver:  &stubResolver{principal: nil},
	}

	res := gatedRequest(t, gate, "ghost")
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestGateForbidden(t *testing.T) {
	metrics := &countingMetrics{}
	gate := rbac.Gate{
		Evaluator: rbac.NewEvaluator(&stubStore{resources: []rbac.Resource{resourceWith("/api/gps")}}),
		Resolver:  &stubResolver{principal: activePrincipal()},
		Metrics:   metrics,
	}

	res := gatedRequest(t, gate, "u1")
	assert.Equal(t, http.StatusForbidden, res.Code)
	code, _ := decodeEnvelope(t, res)
	assert.Equal(t, "permission_denied", code)
	assert.Equal(t, []string{"deny"}, metrics.decisions)
}

func TestGateStoreOutage(t *testing.T) {
	gate := rbac.Gate{
		Evaluator: rbac.NewEvaluator(&stubStore{err: fmt.Errorf("%w: timeout", rbac.ErrStoreUnavailable)}),
		Resolver:  &stubResolver{principal: activePrincipal()},
	}

	res := gatedRequest(t, gate, "u1")
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
	code, _ := decodeEnvelope(t, res)
	assert.Equal(t, "server_error", code)
}

func TestGateResolverOutage(t *testing.T) {
	gate := rbac.Gate{
		Evaluator: rbac.NewEvaluator(&stubStore{}),
		Resolver:  &stubResolver{err: fmt.Errorf("%w: connection refused", rbac.ErrStoreUnavailable)},
	}

	res := gatedRequest(t, gate, "u1")
	assert.Equal(t, http.StatusServiceUnavailable, res.Code)
}
