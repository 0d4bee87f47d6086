package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/portal-crm-backend/pkg/migrate"
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

func TestQuoteMigrationsContainSchemas(t *testing.T) {
	tests := []struct {
		file   string
		checks []string
	}{
		{
			file: "create_quotes_table",
			checks: []string{
				"CREATE TABLE IF NOT EXISTS quotes",
				"lock_version integer NOT NULL DEFAULT 0",
				"CREATE UNIQUE INDEX IF NOT EXISTS idx_quotes_quote_number",
				"CREATE INDEX IF NOT EXISTS idx_quotes_status_expiry",
				"chk_quotes_expiry_after_issue",
			},
		},
		{
			file: "create_deals_table",
			checks: []string{
				"CREATE TABLE IF NOT EXISTS deals",
				"CREATE UNIQUE INDEX IF NOT EXISTS idx_deals_source_quote_id",
				"fk_quotes_deal",
			},
		},
		{
			file: "create_products_table",
			checks: []string{
				"CREATE TABLE IF NOT EXISTS products",
				"idx_products_active_name",
			},
		},
		{
			file: "create_outbox_tables",
			checks: []string{
				"CREATE TABLE IF NOT EXISTS outbox_events",
				"CREATE TABLE IF NOT EXISTS outbox_dlq",
				"idx_outbox_events_unpublished",
			},
		},
	}

	for _, tt := range tests {
		content := readMigration(t, tt.file)
		for _, sub := range tt.checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s: missing expected statement %q", tt.file, sub)
			}
		}
	}
}

func TestDealLinksCannotBeCleared(t *testing.T) {
	content := readMigration(t, "create_deals_table")
	for _, want := range []string{
		"source_quote_id uuid REFERENCES quotes(id) ON DELETE RESTRICT",
		"FOREIGN KEY (deal_id) REFERENCES deals(id) ON DELETE RESTRICT",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("create_deals_table: missing %q", want)
		}
	}
	if strings.Contains(content, "SET NULL") {
		t.Errorf("create_deals_table: deal deletion must not clear quotes.deal_id")
	}
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Quote Tags!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_quote_tags.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "bad.sql"), []byte("-- nothing"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatalf("expected invalid filename to fail validation")
	}
}
