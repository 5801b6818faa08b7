package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLedgerMigrationContainsConstraints(t *testing.T) {
	matches, err := filepath.Glob(filepath.Join("migrations", "*_create_inventory_ledger.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no inventory ledger migration file found")
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	content := string(data)

	checks := []string{
		"CREATE TABLE IF NOT EXISTS inventory_movements",
		"CHECK (quantity <> 0)",
		"supplier_id UUID",
		"FOREIGN KEY (variant_id) REFERENCES product_variants(id)",
		"FOREIGN KEY (sale_id) REFERENCES sales(id)",
		"uq_inventory_movements_sale ON inventory_movements (variant_id, sale_id) WHERE sale_id IS NOT NULL",
		"CREATE TABLE IF NOT EXISTS inventory_snapshots",
		"CHECK (month BETWEEN 1 AND 12)",
		"uq_inventory_snapshots_period ON inventory_snapshots (variant_id, year, month)",
		"DROP TABLE IF EXISTS inventory_movements",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}
