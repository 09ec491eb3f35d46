package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrationsFromFS_Success(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0002_more.up.sql":   {Data: []byte("CREATE TABLE test_b (id INT);")},
		"sql/migrations/0002_more.down.sql": {Data: []byte("DROP TABLE IF EXISTS test_b;")},
		"sql/migrations/0001_init.up.sql":   {Data: []byte("CREATE TABLE test_a (id INT);")},
		"sql/migrations/0001_init.down.sql": {Data: []byte("DROP TABLE IF EXISTS test_a;")},
	}

	migrations, err := loadMigrationsFromFS(fsys)
	if err != nil {
		t.Fatalf("loadMigrationsFromFS failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "init" {
		t.Fatalf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[1].Version != 2 || migrations[1].Down != "DROP TABLE IF EXISTS test_b;" {
		t.Fatalf("unexpected second migration: %+v", migrations[1])
	}
}

func TestLoadMigrationsFromFS_Embedded(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		t.Fatalf("embedded migrations are invalid: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 embedded migrations, got %d", len(migrations))
	}
	if !strings.Contains(migrations[0].Up, "customer_orders") {
		t.Fatal("expected first migration to create customer_orders")
	}
	if !strings.Contains(migrations[1].Up, "receipt_outbox") {
		t.Fatal("expected second migration to create receipt_outbox")
	}
}

func TestLoadMigrationsFromFS_Errors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		fsys    fstest.MapFS
		wantMsg string
	}{
		{
			name: "missing down",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql": {Data: []byte("CREATE TABLE test_a (id INT);")},
			},
			wantMsg: "both up and down",
		},
		{
			name: "invalid name",
			fsys: fstest.MapFS{
				"sql/migrations/not_a_migration.sql": {Data: []byte("SELECT 1;")},
			},
			wantMsg: "invalid migration file name",
		},
		{
			name: "empty body",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":   {Data: []byte("   \n")},
				"sql/migrations/0001_init.down.sql": {Data: []byte("DROP TABLE IF EXISTS test;")},
			},
			wantMsg: "empty",
		},
		{
			name: "name mismatch",
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":    {Data: []byte("SELECT 1;")},
				"sql/migrations/0001_other.down.sql": {Data: []byte("SELECT 1;")},
			},
			wantMsg: "name mismatch",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadMigrationsFromFS(tc.fsys)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("expected error containing %q, got %v", tc.wantMsg, err)
			}
		})
	}
}

func TestBuildMigrationState(t *testing.T) {
	t.Parallel()

	all := []migration{
		{Version: 1, Name: "init"},
		{Version: 2, Name: "receipt_outbox"},
	}

	state := buildMigrationState(all, map[int64]bool{1: true})
	if state.Version != 1 || state.Applied != 1 {
		t.Fatalf("unexpected state: %+v", state)
	}
	if len(state.Pending) != 1 || state.Pending[0] != "0002_receipt_outbox" {
		t.Fatalf("unexpected pending list: %+v", state.Pending)
	}

	empty := buildMigrationState(all, map[int64]bool{})
	if empty.Version != 0 || len(empty.Pending) != 2 {
		t.Fatalf("unexpected empty state: %+v", empty)
	}
}
