package db

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLiteCreatesSchema(t *testing.T) {
	ctx := context.Background()
	dbh, err := Open(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer dbh.Close()

	for _, table := range []string{"organizations", "scenarios", "scenario_nodes", "attempts", "decisions", "certificates", "email_logs", "event_log"} {
		var name string
		err := dbh.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type='table' AND name=$1`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}

	// schema is idempotent
	require.NoError(t, ensureSchema(ctx, dbh, DriverSQLite))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	dbh, err := Open(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer dbh.Close()

	boom := errors.New("boom")
	err = WithTx(ctx, dbh, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO organizations (id,name,created_at) VALUES ('o1','Org',1)`); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, dbh.QueryRowContext(ctx, `SELECT COUNT(*) FROM organizations`).Scan(&n))
	assert.Equal(t, 0, n)

	err = WithTx(ctx, dbh, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO organizations (id,name,created_at) VALUES ('o1','Org',1)`)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, dbh.QueryRowContext(ctx, `SELECT COUNT(*) FROM organizations`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	dbh, err := Open(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	defer dbh.Close()

	_, err = dbh.ExecContext(ctx, `INSERT INTO organizations (id,name,created_at) VALUES ('o1','Org',1)`)
	require.NoError(t, err)
	_, err = dbh.ExecContext(ctx, `INSERT INTO users (id,org_id,email,name,role,password_hash,created_at) VALUES ('u1','o1','a@x.io','A','LEARNER','h',1)`)
	require.NoError(t, err)
	_, err = dbh.ExecContext(ctx, `INSERT INTO users (id,org_id,email,name,role,password_hash,created_at) VALUES ('u2','o1','a@x.io','B','LEARNER','h',1)`)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(errors.New("other")))
}

func TestParseDriver(t *testing.T) {
	d, err := ParseDriver("pgx")
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, d)
	d, err = ParseDriver("")
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, d)
	_, err = ParseDriver("mysql")
	assert.Error(t, err)
}
