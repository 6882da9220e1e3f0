package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coremine/safety-lms/internal/rbac"
	"github.com/coremine/safety-lms/internal/testkit"
)

func TestIssueAndParse(t *testing.T) {
	a := NewAuthService("test-secret")
	tok, err := a.IssueJWT("u1", "ADMIN", "org1")
	require.NoError(t, err)
	c, err := a.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", c.Sub)
	assert.Equal(t, "ADMIN", c.Role)
	assert.Equal(t, "org1", c.Org)

	_, err = NewAuthService("other-secret").Parse(tok)
	assert.Error(t, err)

	a.now = func() time.Time { return time.Now().Add(-9 * time.Hour) }
	old, err := a.IssueJWT("u1", "ADMIN", "org1")
	require.NoError(t, err)
	_, err = NewAuthService("test-secret").Parse(old)
	assert.Error(t, err)
}

func TestMiddlewareChain(t *testing.T) {
	dbh := testkit.OpenDB(t)
	orgID := testkit.SeedOrg(t, dbh, false, 0)
	userID := testkit.SeedUser(t, dbh, orgID, "", "sup@example.com", "SUPERVISOR")
	a := NewAuthService("test-secret")

	var gotSub, gotOrg, gotRole string
	h := JWTMiddleware(a)(AttachRoleFromDB(dbh)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub = SubjectFromContext(r.Context())
		gotOrg = OrgFromContext(r.Context())
		gotRole = rbac.RoleFromContext(r.Context())
	})))

	do := func(header string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusUnauthorized, do(""))
	assert.Equal(t, http.StatusUnauthorized, do("Bearer garbage"))

	// the stored role wins over a forged claim
	tok, err := a.IssueJWT(userID, "ADMIN", "forged-org")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, do("Bearer "+tok))
	assert.Equal(t, userID, gotSub)
	assert.Equal(t, orgID, gotOrg)
	assert.Equal(t, "SUPERVISOR", gotRole)

	ghost, err := a.IssueJWT("ghost", "ADMIN", orgID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do("Bearer "+ghost))
}
