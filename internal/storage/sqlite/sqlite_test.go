package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"synthdb/internal/metadata"
	"synthdb/internal/storage"
	"synthdb/internal/table"
)

func openTestRepo(t *testing.T) *Repo {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "synth.db")
	repo, err := New(context.Background(), storage.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(repo.Close)
	return repo.(*Repo)
}

func testSpecs() []metadata.TableSpec {
	return []metadata.TableSpec{
		{
			Name:       "users",
			PrimaryKey: "id",
			Fields: []metadata.FieldSpec{
				{Name: "id", Type: metadata.TypeID, Subtype: metadata.SubtypeInteger},
				{Name: "country", Type: metadata.TypeCategorical},
			},
		},
		{
			Name:       "orders",
			PrimaryKey: "id",
			Fields: []metadata.FieldSpec{
				{Name: "id", Type: metadata.TypeID, Subtype: metadata.SubtypeInteger},
				{Name: "user_id", Type: metadata.TypeID, Subtype: metadata.SubtypeInteger,
					Ref: &metadata.Reference{Table: "users", Field: "id"}},
				{Name: "amount", Type: metadata.TypeNumerical, Subtype: metadata.SubtypeFloat},
			},
		},
	}
}

func TestBuildCreateSQL(t *testing.T) {
	got, err := buildCreateSQL(testSpecs()[1])
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	want := `CREATE TABLE IF NOT EXISTS "orders" (` +
		`"id" INTEGER PRIMARY KEY, ` +
		`"user_id" INTEGER REFERENCES "users" ("id"), ` +
		`"amount" REAL);`
	if got != want {
		t.Fatalf("ddl mismatch\n got=%s\nwant=%s", got, want)
	}
}

func TestWithForeignKeys(t *testing.T) {
	if got := withForeignKeys("synth.db"); got != "synth.db?_pragma=foreign_keys(1)" {
		t.Fatalf("withForeignKeys=%s", got)
	}
	if got := withForeignKeys("synth.db?mode=rwc"); got != "synth.db?mode=rwc&_pragma=foreign_keys(1)" {
		t.Fatalf("withForeignKeys=%s", got)
	}
}

func TestEnsureTablesAndInsertRows(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	if err := repo.EnsureTables(ctx, testSpecs()); err != nil {
		t.Fatalf("EnsureTables: %v", err)
	}
	// Idempotent on repeat.
	if err := repo.EnsureTables(ctx, testSpecs()); err != nil {
		t.Fatalf("EnsureTables (repeat): %v", err)
	}

	n, err := repo.InsertRows(ctx, "users", []string{"id", "country"}, [][]any{
		{int64(0), "de"},
		{int64(1), "fr"},
	})
	if err != nil {
		t.Fatalf("InsertRows users: %v", err)
	}
	if n != 2 {
		t.Fatalf("users inserted=%d, want 2", n)
	}

	n, err = repo.InsertRows(ctx, "orders", []string{"id", "user_id", "amount"}, [][]any{
		{int64(0), int64(0), 19.99},
		{int64(1), int64(0), 5.0},
		{int64(2), int64(1), 12.5},
	})
	if err != nil {
		t.Fatalf("InsertRows orders: %v", err)
	}
	if n != 3 {
		t.Fatalf("orders inserted=%d, want 3", n)
	}

	var count int
	if err := repo.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders WHERE user_id = 0").Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count != 2 {
		t.Fatalf("orders for user 0=%d, want 2", count)
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	if err := repo.EnsureTables(ctx, testSpecs()); err != nil {
		t.Fatalf("EnsureTables: %v", err)
	}

	_, err := repo.InsertRows(ctx, "orders", []string{"id", "user_id", "amount"}, [][]any{
		{int64(0), int64(42), 1.0},
	})
	if err == nil {
		t.Fatalf("expected foreign key violation for dangling user_id")
	}
}

func TestInsertRowsEmpty(t *testing.T) {
	repo := openTestRepo(t)
	n, err := repo.InsertRows(context.Background(), "users", []string{"id"}, nil)
	if err != nil {
		t.Fatalf("InsertRows: %v", err)
	}
	if n != 0 {
		t.Fatalf("inserted=%d, want 0", n)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	spec := &metadata.Spec{Tables: testSpecs()}

	users := table.New("users", []string{"id", "country"})
	_ = users.AppendRow([]any{int64(0), "de"})
	orders := table.New("orders", []string{"id", "user_id", "amount"})
	_ = orders.AppendRow([]any{int64(0), int64(0), 3.5})
	_ = orders.AppendRow([]any{int64(1), int64(0), 8.0})

	total, err := storage.Write(ctx, repo, spec, map[string]*table.Table{
		"users":  users,
		"orders": orders,
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if total != 3 {
		t.Fatalf("total=%d, want 3", total)
	}

	var sum float64
	if err := repo.db.QueryRowContext(ctx, "SELECT SUM(amount) FROM orders").Scan(&sum); err != nil {
		t.Fatalf("sum query: %v", err)
	}
	if sum != 11.5 {
		t.Fatalf("sum=%v, want 11.5", sum)
	}
}
