package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConn(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	_, err = conn.Exec(`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)

	return conn
}

func countItems(t *testing.T, conn *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&n))
	return n
}

func TestWithTransaction_Commits(t *testing.T) {
	conn := newTestConn(t)

	err := WithTransaction(conn, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO items (name) VALUES (?)`, "a")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countItems(t, conn))
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	conn := newTestConn(t)

	wantErr := errors.New("boom")
	err := WithTransaction(conn, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO items (name) VALUES (?)`, "a"); err != nil {
			return err
		}
		return wantErr
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 0, countItems(t, conn))
}

func TestWithTransaction_RollsBackOnPanic(t *testing.T) {
	conn := newTestConn(t)

	err := WithTransaction(conn, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO items (name) VALUES (?)`, "a"); err != nil {
			return err
		}
		panic("unexpected")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in transaction")
	assert.Equal(t, 0, countItems(t, conn))
}

func TestWithTransaction_NilConnection(t *testing.T) {
	err := WithTransaction(nil, func(tx *sql.Tx) error { return nil })
	assert.Error(t, err)
}

func TestNew_ProfilesAndHealthCheck(t *testing.T) {
	for _, profile := range []DatabaseProfile{ProfileLedger, ProfileCache, ProfileStandard} {
		db, err := New(Config{
			Path:    "file:" + string(profile) + "?mode=memory&cache=shared",
			Profile: profile,
			Name:    string(profile),
		})
		require.NoError(t, err, "profile %s", profile)

		require.NoError(t, db.HealthCheck(context.Background()))
		require.NoError(t, db.QuickCheck(context.Background()))
		assert.Equal(t, profile, db.Profile())
		assert.Equal(t, string(profile), db.Name())

		require.NoError(t, db.Close())
	}
}
