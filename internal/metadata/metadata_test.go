package metadata

import (
	"strings"
	"testing"

	"synthdb/internal/table"
)

const usersOrdersJSON = `{
  "tables": [
    {
      "name": "users",
      "primary_key": "id",
      "fields": [
        {"name": "id", "type": "id", "subtype": "integer"},
        {"name": "age", "type": "numerical", "subtype": "integer"}
      ]
    },
    {
      "name": "orders",
      "primary_key": "id",
      "fields": [
        {"name": "id", "type": "id", "subtype": "integer"},
        {"name": "user_id", "type": "id", "subtype": "integer", "ref": {"table": "users", "field": "id"}},
        {"name": "amount", "type": "numerical", "subtype": "float"}
      ],
      "constraints": [
        {"kind": "positive", "columns": ["amount"]}
      ]
    }
  ]
}`

func TestParseAndAccessors(t *testing.T) {
	t.Parallel()

	s, err := Parse([]byte(usersOrdersJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got := s.TableNames(); len(got) != 2 || got[0] != "users" || got[1] != "orders" {
		t.Fatalf("TableNames = %v", got)
	}

	fks := s.ForeignKeys("orders")
	if len(fks) != 1 {
		t.Fatalf("ForeignKeys = %v", fks)
	}
	if fks[0].Column != "user_id" || fks[0].Table != "users" || fks[0].Field != "id" {
		t.Fatalf("fk = %+v", fks[0])
	}

	cs := s.Constraints("orders")
	if len(cs) != 1 || cs[0].Kind != "positive" {
		t.Fatalf("Constraints = %v", cs)
	}
}

func TestParse_ConfigurationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		json string
		want string
	}{
		{
			name: "missing_pk_column",
			json: `{"tables":[{"name":"t","primary_key":"nope","fields":[{"name":"a","type":"numerical"}]}]}`,
			want: "primary key",
		},
		{
			name: "constraint_unknown_column",
			json: `{"tables":[{"name":"t","primary_key":"a","fields":[{"name":"a","type":"id"}],"constraints":[{"kind":"positive","columns":["ghost"]}]}]}`,
			want: "unknown column",
		},
		{
			name: "fk_unknown_table",
			json: `{"tables":[{"name":"t","primary_key":"a","fields":[{"name":"a","type":"id"},{"name":"b","type":"id","ref":{"table":"ghost","field":"x"}}]}]}`,
			want: "unknown table",
		},
		{
			name: "duplicate_table",
			json: `{"tables":[{"name":"t","primary_key":"a","fields":[{"name":"a","type":"id"}]},{"name":"t","primary_key":"a","fields":[{"name":"a","type":"id"}]}]}`,
			want: "duplicate table",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.json))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateData(t *testing.T) {
	t.Parallel()

	s, err := Parse([]byte(usersOrdersJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	users := table.New("users", []string{"id", "age"})
	_ = users.AppendRow([]any{int64(1), int64(30)})
	_ = users.AppendRow([]any{int64(2), int64(44)})

	orders := table.New("orders", []string{"id", "user_id", "amount"})
	_ = orders.AppendRow([]any{int64(10), int64(1), 5.0})
	_ = orders.AppendRow([]any{int64(11), int64(2), 7.5})

	tables := map[string]*table.Table{"users": users, "orders": orders}
	if err := s.ValidateData(tables); err != nil {
		t.Fatalf("ValidateData: %v", err)
	}

	t.Run("duplicate_pk", func(t *testing.T) {
		bad := users.Clone()
		bad.Rows[1][0] = int64(1)
		err := s.ValidateData(map[string]*table.Table{"users": bad, "orders": orders})
		if err == nil || !strings.Contains(err.Error(), "duplicate primary key") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("dangling_fk", func(t *testing.T) {
		bad := orders.Clone()
		bad.Rows[0][1] = int64(999)
		err := s.ValidateData(map[string]*table.Table{"users": users, "orders": bad})
		if err == nil || !strings.Contains(err.Error(), "no matching row") {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("int_float_key_equality", func(t *testing.T) {
		// CSV loading may type the same key as int64 in one file and float64
		// in another.
		f := orders.Clone()
		f.Rows[0][1] = float64(1)
		if err := s.ValidateData(map[string]*table.Table{"users": users, "orders": f}); err != nil {
			t.Fatalf("ValidateData: %v", err)
		}
	})
}
