package bigquery

import (
	"context"
	"testing"

	"github.com/angelmondragon/snapstudio-backend/pkg/config"
)

func TestConfiguredTables(t *testing.T) {
	cfg := config.BigQueryConfig{
		CreditEventsTable: " credit_events ",
		UsageDailyTable:   "",
	}

	tables := configuredTables(cfg)

	if len(tables) != 1 {
		t.Fatalf("expected 1 table, got %d", len(tables))
	}
	if tables[0] != "credit_events" {
		t.Fatalf("expected credit_events, got %s", tables[0])
	}
}

func TestClientOptionsPrioritizesJSON(t *testing.T) {
	gcp := config.GCPConfig{
		CredentialsJSON:        `{"dummy": "value"}`,
		ApplicationCredentials: "/tmp/creds",
	}

	opts := clientOptions(gcp)
	if len(opts) != 1 {
		t.Fatalf("expected 1 option, got %d", len(opts))
	}
}

func TestClientOptionsWithFile(t *testing.T) {
	gcp := config.GCPConfig{
		ApplicationCredentials: "/tmp/creds",
	}

	opts := clientOptions(gcp)
	if len(opts) != 1 {
		t.Fatalf("expected 1 option when using credentials file, got %d", len(opts))
	}
}

func TestClientOptionsEmpty(t *testing.T) {
	gcp := config.GCPConfig{}

	opts := clientOptions(gcp)
	if len(opts) != 0 {
		t.Fatalf("expected 0 options when no credentials provided, got %d", len(opts))
	}
}

func TestConfiguredTablesBoth(t *testing.T) {
	tables := configuredTables(config.BigQueryConfig{CreditEventsTable: "credit_events", UsageDailyTable: "usage_daily"})
	if len(tables) != 2 || tables[1] != "usage_daily" {
		t.Fatalf("unexpected tables %v", tables)
	}
}

func TestNilClientTableNames(t *testing.T) {
	var c *Client
	if c.CreditEventsTable() != "" || c.UsageDailyTable() != "" {
		t.Fatal("nil client should report empty table names")
	}
	if err := c.InsertRows(context.Background(), "credit_events", []any{1}); err != errClientNotInitialized {
		t.Fatalf("expected not initialized error, got %v", err)
	}
}
