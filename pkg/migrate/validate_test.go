package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeMigration(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestCreateSQLMigrationPassesValidation(t *testing.T) {
	dir := t.TempDir()
	migrationClock = func() time.Time { return time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC) }
	t.Cleanup(func() { migrationClock = time.Now })

	path, err := CreateSQLMigration(dir, "  Add Refund Index! ")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20261015093000_add_refund_index.sql"), path)
	require.NoError(t, ValidateDir(dir))

	_, err = CreateSQLMigration(dir, "add refund index")
	require.ErrorContains(t, err, "already exists")

	_, err = CreateSQLMigration(dir, "!!!")
	require.ErrorContains(t, err, "empty sanitized filename")
}

func TestValidateDirRejectsMalformedMigrations(t *testing.T) {
	cases := map[string]string{
		"missing down":   "-- +goose Up\nSELECT 1;\n",
		"down first":     "-- +goose Down\nSELECT 1;\n-- +goose Up\nSELECT 1;\n",
		"unterminated":   "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\nSELECT 1;\n",
		"stray end":      "-- +goose Up\n-- +goose StatementEnd\n-- +goose Down\nSELECT 1;\n",
		"ledger rewrite": "-- +goose Up\nUPDATE credit_transactions SET amount = 0;\n" +
			"-- +goose Down\nSELECT 1;\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			writeMigration(t, dir, "20261015093000_broken.sql", body)
			require.Error(t, ValidateDir(dir))
		})
	}
}

func TestValidateDirAllowsLedgerCleanupInDown(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "20261015093000_backfill.sql", strings.Join([]string{
		"-- +goose Up",
		"INSERT INTO credit_transactions (id) VALUES ('a');",
		"-- +goose Down",
		"DELETE FROM credit_transactions WHERE id = 'a';",
		"",
	}, "\n"))
	require.NoError(t, ValidateDir(dir))
}

func TestValidateDirRejectsDuplicateVersions(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	writeMigration(t, dir, "20261015093000_one.sql", body)
	writeMigration(t, dir, "20261015093000_two.sql", body)
	require.ErrorContains(t, ValidateDir(dir), "duplicate migration version")
	require.ErrorContains(t, ValidateDir(""), "dir is required")
}

func TestRunValidatesBeforeApplying(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "20261015093000_broken.sql", "-- +goose Up\nSELECT 1;\n")

	err := Run(context.Background(), nil, dir, "up")
	require.ErrorContains(t, err, "validate")

	err = Run(context.Background(), nil, dir, "status")
	require.ErrorContains(t, err, "db is required")
}

func TestMigrateToVersionRefusesToDropLedger(t *testing.T) {
	err := MigrateToVersion(context.Background(), nil, "migrations", "0")
	require.ErrorContains(t, err, "predates the ledger tables")

	err = MigrateToVersion(context.Background(), nil, "migrations", "latest")
	require.ErrorContains(t, err, "invalid version")

	err = MigrateToVersion(context.Background(), nil, "migrations", "20260301091000")
	require.ErrorContains(t, err, "db is required")
}
