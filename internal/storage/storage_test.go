package storage

import (
	"context"
	"testing"

	"synthdb/internal/metadata"
	"synthdb/internal/table"
)

type fakeRepo struct {
	ensured []string
	inserts []string
	rows    map[string]int
}

func (f *fakeRepo) Close() {}

func (f *fakeRepo) EnsureTables(ctx context.Context, specs []metadata.TableSpec) error {
	for _, ts := range specs {
		f.ensured = append(f.ensured, ts.Name)
	}
	return nil
}

func (f *fakeRepo) InsertRows(ctx context.Context, tbl string, columns []string, rows [][]any) (int64, error) {
	f.inserts = append(f.inserts, tbl)
	if f.rows == nil {
		f.rows = map[string]int{}
	}
	f.rows[tbl] = len(rows)
	return int64(len(rows)), nil
}

func shopSpec() *metadata.Spec {
	return &metadata.Spec{Tables: []metadata.TableSpec{
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
		{
			Name:       "users",
			PrimaryKey: "id",
			Fields: []metadata.FieldSpec{
				{Name: "id", Type: metadata.TypeID, Subtype: metadata.SubtypeInteger},
				{Name: "country", Type: metadata.TypeCategorical},
			},
		},
	}}
}

func TestWriteInsertsParentsFirst(t *testing.T) {
	spec := shopSpec()

	users := table.New("users", []string{"id", "country"})
	_ = users.AppendRow([]any{int64(0), "de"})
	_ = users.AppendRow([]any{int64(1), "fr"})
	orders := table.New("orders", []string{"id", "user_id", "amount"})
	_ = orders.AppendRow([]any{int64(0), int64(1), 12.5})

	repo := &fakeRepo{}
	total, err := Write(context.Background(), repo, spec, map[string]*table.Table{
		"users":  users,
		"orders": orders,
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if total != 3 {
		t.Fatalf("total=%d, want 3", total)
	}

	if len(repo.ensured) != 2 || repo.ensured[0] != "users" || repo.ensured[1] != "orders" {
		t.Fatalf("ensure order=%v, want [users orders]", repo.ensured)
	}
	if len(repo.inserts) != 2 || repo.inserts[0] != "users" || repo.inserts[1] != "orders" {
		t.Fatalf("insert order=%v, want [users orders]", repo.inserts)
	}
	if repo.rows["users"] != 2 || repo.rows["orders"] != 1 {
		t.Fatalf("row counts=%v", repo.rows)
	}
}

func TestWriteSkipsMissingTables(t *testing.T) {
	repo := &fakeRepo{}
	total, err := Write(context.Background(), repo, shopSpec(), map[string]*table.Table{})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if total != 0 {
		t.Fatalf("total=%d, want 0", total)
	}
	if len(repo.ensured) != 2 {
		t.Fatalf("schema should still be created; ensured=%v", repo.ensured)
	}
	if len(repo.inserts) != 0 {
		t.Fatalf("unexpected inserts %v", repo.inserts)
	}
}

func TestTableColumns(t *testing.T) {
	ts := metadata.TableSpec{
		Name:       "orders",
		PrimaryKey: "id",
		Fields: []metadata.FieldSpec{
			{Name: "id", Type: metadata.TypeID, Subtype: metadata.SubtypeString},
			{Name: "user_id", Type: metadata.TypeID, Subtype: metadata.SubtypeInteger,
				Ref: &metadata.Reference{Table: "users", Field: "id"}},
			{Name: "qty", Type: metadata.TypeNumerical, Subtype: metadata.SubtypeInteger},
			{Name: "amount", Type: metadata.TypeNumerical, Subtype: metadata.SubtypeFloat},
			{Name: "status", Type: metadata.TypeCategorical},
			{Name: "paid", Type: metadata.TypeBoolean},
		},
	}

	cols, err := TableColumns(ts)
	if err != nil {
		t.Fatalf("TableColumns: %v", err)
	}

	want := []Column{
		{Name: "id", Type: TypeText, PrimaryKey: true},
		{Name: "user_id", Type: TypeInteger},
		{Name: "qty", Type: TypeInteger},
		{Name: "amount", Type: TypeReal},
		{Name: "status", Type: TypeText},
		{Name: "paid", Type: TypeBool},
	}
	if len(cols) != len(want) {
		t.Fatalf("cols=%d, want %d", len(cols), len(want))
	}
	for i, w := range want {
		got := cols[i]
		if got.Name != w.Name || got.Type != w.Type || got.PrimaryKey != w.PrimaryKey {
			t.Fatalf("col[%d]=%+v, want %+v", i, got, w)
		}
	}
	if cols[1].References == nil || cols[1].References.Table != "users" {
		t.Fatalf("user_id reference missing: %+v", cols[1])
	}
}

func TestTableColumnsRejectsUnknownType(t *testing.T) {
	_, err := TableColumns(metadata.TableSpec{
		Name:   "t",
		Fields: []metadata.FieldSpec{{Name: "x", Type: "datetime"}},
	})
	if err == nil {
		t.Fatalf("expected error for unsupported field type")
	}
}

func TestNewRejectsUnknownKind(t *testing.T) {
	if _, err := New(context.Background(), Config{Kind: "oracle"}); err == nil {
		t.Fatalf("expected error for unregistered kind")
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected error for empty kind")
	}
}

func TestRegisterPanics(t *testing.T) {
	expectPanic := func(name string, fn func()) {
		t.Helper()
		defer func() {
			if recover() == nil {
				t.Fatalf("%s: expected panic", name)
			}
		}()
		fn()
	}

	expectPanic("empty kind", func() { Register("", func(context.Context, Config) (Repository, error) { return nil, nil }) })
	expectPanic("nil factory", func() { Register("x", nil) })

	Register("dup", func(context.Context, Config) (Repository, error) { return nil, nil })
	expectPanic("duplicate kind", func() {
		Register("dup", func(context.Context, Config) (Repository, error) { return nil, nil })
	})
}
