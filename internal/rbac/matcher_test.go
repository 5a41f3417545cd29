package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"api/rutas", "/api/rutas/"},
		{"/api/rutas", "/api/rutas/"},
		{"/api/rutas/", "/api/rutas/"},
		{"/api/rutas///", "/api/rutas/"},
		{"  /API/Rutas ", "/api/rutas/"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizePath(tc.in), "input %q", tc.in)
	}
}

func TestMatches(t *testing.T) {
	res := Resource{LinkBackend: "/api/rutas"}

	assert.True(t, Matches("/api/rutas", res))
	assert.True(t, Matches("/api/rutas/", res))
	assert.True(t, Matches("/api/rutas/rutas/42", res))
	assert.True(t, Matches("/API/RUTAS/buses", res))
	assert.False(t, Matches("/api/rutasx", res))
	assert.False(t, Matches("/api", res))
	assert.False(t, Matches("/other", res))
}

func TestMatchesCatchAll(t *testing.T) {
	root := Resource{LinkBackend: "/"}
	assert.True(t, Matches("/anything/at/all", root))
	assert.True(t, Matches("", root))
}

func TestMatchingResources(t *testing.T) {
	candidates := []Resource{
		{ID: "a", LinkBackend: "/api/rutas"},
		{ID: "b", LinkBackend: "/api"},
		{ID: "c", LinkBackend: "/api/gps"},
	}
	matched := MatchingResources("/api/rutas/buses", candidates)
	ids := make([]string, 0, len(matched))
	for _, res := range matched {
		ids = append(ids, res.ID)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}

func TestValidPermissionCode(t *testing.T) {
	valid := []string{"rutas.view", "gestion.reservas.create", "gps.update", "usuarios.delete"}
	for _, code := range valid {
		assert.True(t, ValidPermissionCode(code), code)
	}

	invalid := []string{"", "view", ".view", "rutas.", "rutas.manage", "Rutas.view", "rutas .view", " rutas.view", "rutas.view ", "rutas\t.view"}
	for _, code := range invalid {
		assert.False(t, ValidPermissionCode(code), code)
	}
}

func TestActionForMethod(t *testing.T) {
	cases := map[string]Action{
		"GET":     ActionView,
		"head":    ActionView,
		"OPTIONS": ActionView,
		"POST":    ActionCreate,
		"PUT":     ActionUpdate,
		"PATCH":   ActionUpdate,
		"DELETE":  ActionDelete,
	}
	for method, want := range cases {
		got, ok := ActionForMethod(method)
		assert.True(t, ok, method)
		assert.Equal(t, want, got, method)
	}

	_, ok := ActionForMethod("TRACE")
	assert.False(t, ok)
}
