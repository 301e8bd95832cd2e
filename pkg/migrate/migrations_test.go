package migrate_test

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/angelmondragon/snapstudio-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestLedgerMigrationContainsInvariants(t *testing.T) {
	content := readMigration(t, "create_ledger_tables")
	assertContains(t, content, []string{
		"CREATE TABLE IF NOT EXISTS accounts",
		"CHECK (balance >= 0)",
		"CREATE TABLE IF NOT EXISTS credit_transactions",
		"CHECK (balance_after = balance_before + amount)",
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_credit_transactions_external_event",
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_credit_transactions_operation_type",
		"CREATE TABLE IF NOT EXISTS processed_events",
		"PRIMARY KEY (account_id, day)",
	})
}

func TestPricingMigrationSeedsDefaults(t *testing.T) {
	content := readMigration(t, "create_pricing_tables")
	assertContains(t, content, []string{
		"CREATE TABLE IF NOT EXISTS price_table_versions",
		"CREATE TABLE IF NOT EXISTS credit_packages",
		"(1, 'background', 6)",
		"('price_12345', 'Starter', 50",
	})
	for key, cost := range migrate.DefaultPriceEntries() {
		row := "(1, '" + string(key) + "', "
		if !strings.Contains(content, row) {
			t.Errorf("migration does not seed %s", key)
			continue
		}
		if !strings.Contains(content, row+strconv.FormatInt(cost, 10)+")") {
			t.Errorf("migration seed for %s disagrees with DefaultPriceEntries (%d)", key, cost)
		}
	}
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate dir: %v", err)
	}
}
