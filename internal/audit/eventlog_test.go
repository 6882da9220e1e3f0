package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coremine/safety-lms/internal/testkit"
)

func TestRecordAndSearch(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepo(testkit.OpenDB(t))

	require.NoError(t, repo.Record(ctx, "org1", TypeCertificateIssued, "cert-1", map[string]string{"serial": "CRM-2026-000001"}))
	require.NoError(t, repo.Record(ctx, "org1", TypeUsersImported, "import", map[string]int{"created": 3}))
	require.NoError(t, repo.Record(ctx, "org2", TypeCertificateIssued, "cert-9", nil))

	all, err := repo.Search(ctx, "org1", "", 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, TypeUsersImported, all[0].Type)
	assert.JSONEq(t, `{"created":3}`, string(all[0].Data))

	certs, err := repo.Search(ctx, "org1", "certificate", 10)
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, "cert-1", certs[0].Key)

	byKey, err := repo.Search(ctx, "org2", "cert-9", 10)
	require.NoError(t, err)
	assert.Len(t, byKey, 1)
}
