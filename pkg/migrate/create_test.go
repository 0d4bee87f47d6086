package migrate

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestCreateSQLMigrationRejectsCollision(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

	path, err := createSQLMigrationAt(dir, "quote tags", at)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20260105090000_quote_tags.sql"), path)

	_, err = createSQLMigrationAt(dir, "quote tags", at)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestCreateSQLMigrationRequiresName(t *testing.T) {
	_, err := createSQLMigrationAt(t.TempDir(), "!!!", time.Now())
	assert.Error(t, err)
}

func TestValidateDirCollectsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("20260105090000_a.sql", "-- +goose Down\n-- +goose Up\n")
	write("20260105090000_b.sql", "-- +goose Up\n")
	write("notes.sql", "")

	err := ValidateDir(dir)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 4)
}

func TestValidateDirRequiresMigrations(t *testing.T) {
	assert.Error(t, ValidateDir(t.TempDir()))
}
