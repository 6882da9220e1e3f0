package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckerTable(t *testing.T) {
	c := NewChecker(nil)
	assert.True(t, c.Has(RoleLearner, "attempt:complete"))
	assert.False(t, c.Has(RoleLearner, "report:view"))
	assert.True(t, c.Has(RoleSupervisor, "report:view"))
	assert.False(t, c.Has(RoleSupervisor, "certificate:revoke"))
	assert.True(t, c.Has(RoleAdmin, "certificate:revoke"))
	assert.False(t, c.Has("GUEST", "course:view"))
	assert.True(t, c.Any(RoleSupervisor, "certificate:revoke", "incident:create"))
}

func TestRequire(t *testing.T) {
	h := Require("report:view")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for role, want := range map[string]int{
		"":             http.StatusForbidden,
		RoleLearner:    http.StatusForbidden,
		RoleSupervisor: http.StatusNoContent,
		RoleAdmin:      http.StatusNoContent,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithRole(req.Context(), role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, role)
	}
	assert.True(t, Can(WithRole(context.Background(), RoleAdmin), "anything"))
}

func TestPrefixGrant(t *testing.T) {
	c := NewChecker(map[string][]string{"AUDITOR": {"report:*", "audit:view"}})
	assert.True(t, c.Has("AUDITOR", "report:view"))
	assert.True(t, c.Has("AUDITOR", "audit:view"))
	assert.False(t, c.Has("AUDITOR", "audit:export"))
	assert.False(t, c.Has(RoleAdmin, "report:view"))
	assert.Equal(t, "", RoleFromContext(context.Background()))
}
