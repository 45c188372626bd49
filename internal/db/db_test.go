package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sujalbistaa/confessions/internal/models"
)

func TestWithPragmas(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"confessions.db", "confessions.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
		{":memory:", ":memory:?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"},
		{"file.db?_pragma=busy_timeout(100)", "file.db?_pragma=busy_timeout(100)&_pragma=foreign_keys(1)"},
		{"file.db?_pragma=foreign_keys(0)", "file.db?_pragma=foreign_keys(0)&_pragma=busy_timeout(5000)"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, withPragmas(tt.input))
		})
	}
}

func TestOpen_InvalidURL(t *testing.T) {
	_, err := Open("mysql://localhost/db", zap.NewNop())
	assert.Error(t, err)
}

func TestOpenAndMigrate_SQLite(t *testing.T) {
	gdb, err := Open("sqlite://:memory:", zap.NewNop())
	require.NoError(t, err)
	defer Close(gdb)

	require.NoError(t, Migrate(gdb))
	assert.True(t, gdb.Migrator().HasTable(&models.Confession{}))
	assert.True(t, gdb.Migrator().HasTable(&models.Comment{}))

	var fk int
	require.NoError(t, gdb.Raw("PRAGMA foreign_keys").Scan(&fk).Error)
	assert.Equal(t, 1, fk)
}

func TestMigrate_Idempotent(t *testing.T) {
	gdb, err := Open("sqlite://:memory:", zap.NewNop())
	require.NoError(t, err)
	defer Close(gdb)

	require.NoError(t, Migrate(gdb))
	require.NoError(t, Migrate(gdb))
}
