package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectRebind(t *testing.T) {
	assert.Equal(t,
		"SELECT id FROM carts WHERE user_id = $1 AND id = $2",
		postgresDialect.rebind("SELECT id FROM carts WHERE user_id = ? AND id = ?"))
	assert.Equal(t,
		"SELECT id FROM carts WHERE user_id = ?",
		sqliteDialect.rebind("SELECT id FROM carts WHERE user_id = ?"))
}

func TestDialectFor(t *testing.T) {
	for _, name := range []string{"mysql", "postgres", "sqlite"} {
		d, err := dialectFor(name)
		require.NoError(t, err)
		assert.Equal(t, name, d.name)
	}

	_, err := dialectFor("oracle")
	assert.Error(t, err)
}

func TestLockCartQuery(t *testing.T) {
	assert.Contains(t, mysqlDialect.lockCartQuery(), "FOR UPDATE")
	assert.Contains(t, postgresDialect.lockCartQuery(), "$1 FOR UPDATE")
	assert.NotContains(t, sqliteDialect.lockCartQuery(), "FOR UPDATE")
}
