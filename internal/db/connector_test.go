package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLite(t *testing.T) {
	gormDB, err := Open("sqlite", ":memory:", Options{MaxOpenConns: 1})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Ping())
	require.NoError(t, sqlDB.Close())
}

func TestOpen_UnsupportedType(t *testing.T) {
	_, err := Open("oracle", "dsn", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}

func TestOpen_MissingDSN(t *testing.T) {
	_, err := Open("sqlite", "", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN is required")
}
