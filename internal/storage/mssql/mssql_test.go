package mssql

import (
	"testing"

	"synthdb/internal/metadata"
)

func TestBuildInsertSQL(t *testing.T) {
	stmt, args := buildInsertSQL(
		"orders",
		[]string{"id", "amount"},
		[][]any{{int64(1), 9.5}, {int64(2), 3.25}},
	)

	want := "INSERT INTO [orders] ([id], [amount]) VALUES (@p1, @p2), (@p3, @p4);"
	if stmt != want {
		t.Fatalf("stmt mismatch\n got=%s\nwant=%s", stmt, want)
	}
	if len(args) != 4 {
		t.Fatalf("args=%d, want 4", len(args))
	}
	if args[0] != int64(1) || args[3] != 3.25 {
		t.Fatalf("arg order wrong: %v", args)
	}
}

func TestBuildCreateSQL(t *testing.T) {
	ts := metadata.TableSpec{
		Name:       "orders",
		PrimaryKey: "id",
		Fields: []metadata.FieldSpec{
			{Name: "id", Type: metadata.TypeID, Subtype: metadata.SubtypeString},
			{Name: "user_id", Type: metadata.TypeID, Subtype: metadata.SubtypeString,
				Ref: &metadata.Reference{Table: "users", Field: "id"}},
			{Name: "note", Type: metadata.TypeCategorical},
			{Name: "amount", Type: metadata.TypeNumerical, Subtype: metadata.SubtypeFloat},
			{Name: "paid", Type: metadata.TypeBoolean},
		},
	}

	got, err := buildCreateSQL(ts)
	if err != nil {
		t.Fatalf("buildCreateSQL: %v", err)
	}
	want := "IF OBJECT_ID(N'orders', N'U') IS NULL CREATE TABLE [orders] (" +
		"[id] NVARCHAR(450) PRIMARY KEY, " +
		"[user_id] NVARCHAR(450) REFERENCES [users] ([id]), " +
		"[note] NVARCHAR(MAX), " +
		"[amount] FLOAT, " +
		"[paid] BIT);"
	if got != want {
		t.Fatalf("ddl mismatch\n got=%s\nwant=%s", got, want)
	}
}

func TestMsIdent(t *testing.T) {
	if got := msIdent("a]b"); got != "[a]]b]" {
		t.Fatalf("msIdent=%s, want [a]]b]", got)
	}
}
