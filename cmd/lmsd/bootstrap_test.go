package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coremine/safety-lms/internal/testkit"
	"github.com/coremine/safety-lms/internal/users"
)

func TestBootstrapCreatesOrgAndAdmin(t *testing.T) {
	ctx := context.Background()
	dbh := testkit.OpenDB(t)
	var out bytes.Buffer
	err := runBootstrap(ctx, dbh, []string{"-org", "CoreMine", "-site", "North Shaft", "-email", "Admin@CoreMine.example", "-password", "correct-horse"}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "CoreMine")
	assert.NotContains(t, out.String(), "password")

	u, err := users.NewSQLStore(dbh).Authenticate(ctx, "admin@coremine.example", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, users.RoleAdmin, u.Role)
	assert.NotEmpty(t, u.SiteID)
	assert.Equal(t, 1, testkit.Count(t, dbh, `SELECT COUNT(*) FROM organizations`))
}

func TestBootstrapRequiresOrgAndEmail(t *testing.T) {
	var out bytes.Buffer
	err := runBootstrap(context.Background(), testkit.OpenDB(t), []string{"-org", "CoreMine"}, &out)
	assert.Error(t, err)
	assert.Contains(t, out.String(), "-email")
}
