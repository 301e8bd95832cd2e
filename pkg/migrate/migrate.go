package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

// ledgerBaseVersion creates accounts and credit_transactions. Migrating below
// it destroys the ledger, so only an explicit "down" may do that.
const ledgerBaseVersion int64 = 20260301090000

// Run executes a goose command against db. Commands that apply migrations
// validate the directory first so a malformed file never half-applies.
func Run(ctx context.Context, db *sql.DB, dir string, command string, args ...string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	if appliesMigrations(command) {
		if err := ValidateDir(dir); err != nil {
			return fmt.Errorf("validate %s: %w", dir, err)
		}
	}
	if db == nil {
		return fmt.Errorf("db is required")
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.RunContext(ctx, command, db, dir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion moves the schema up or down to targetVersion.
func MigrateToVersion(ctx context.Context, db *sql.DB, dir string, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	if target < ledgerBaseVersion {
		return fmt.Errorf("version %d predates the ledger tables (%d); use an explicit down instead", target, ledgerBaseVersion)
	}
	if db == nil {
		return fmt.Errorf("db is required")
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	current, err := goose.GetDBVersion(db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		if err := ValidateDir(dir); err != nil {
			return fmt.Errorf("validate %s: %w", dir, err)
		}
		if err := goose.UpToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
		return nil
	default:
		if err := goose.DownToContext(ctx, db, dir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
		return nil
	}
}

func appliesMigrations(command string) bool {
	switch command {
	case "up", "up-by-one", "up-to", "redo":
		return true
	}
	return false
}
