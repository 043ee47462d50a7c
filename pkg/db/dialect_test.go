package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectAcceptsPostgresAndSQLite(t *testing.T) {
	for _, typ := range []string{"postgres", "sqlite", " Postgres "} {
		dialect, err := Dialect(Config{Type: typ, Name: "credits"})
		require.NoError(t, err, typ)
		assert.NotNil(t, dialect, typ)
	}
}

func TestDialectRejectsOtherEngines(t *testing.T) {
	for _, typ := range []string{"mysql", "", "sqlserver"} {
		dialect, err := Dialect(Config{Type: typ})
		assert.ErrorIs(t, err, ErrUnsupportedDialect, typ)
		assert.Nil(t, dialect, typ)
	}
}
