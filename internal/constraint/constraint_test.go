package constraint

import (
	"math"
	"strings"
	"testing"

	"synthdb/internal/metadata"
	"synthdb/internal/table"
)

func betweenSpec(col string, low, high float64) metadata.ConstraintSpec {
	return metadata.ConstraintSpec{
		Kind:    "between",
		Columns: []string{col},
		Options: map[string]any{"low": low, "high": high},
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate kind")
		}
	}()
	Register("between", newBetween)
}

func TestUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := New(metadata.ConstraintSpec{Kind: "ghost"})
	if err == nil || !strings.Contains(err.Error(), "unknown kind") {
		t.Fatalf("err = %v", err)
	}
}

func TestBetweenRoundTrip(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline([]metadata.ConstraintSpec{betweenSpec("score", 0, 1)})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	tb := table.New("t", []string{"score"})
	orig := []float64{0.1, 0.5, 0.99, 0.0, 1.0}
	for _, v := range orig {
		_ = tb.AppendRow([]any{v})
	}

	if err := p.Transform(tb); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	// Transformed values are unbounded, not in [0,1] in general.
	if v := tb.Rows[2][0].(float64); v < 1 {
		t.Fatalf("transformed 0.99 should be a large logit, got %v", v)
	}

	if err := p.ReverseTransform(tb); err != nil {
		t.Fatalf("ReverseTransform: %v", err)
	}
	// Recovery is tolerance-exact, not bit-exact: interior values come back
	// within floating point error and bound values within the edge clamp.
	colIx := map[string]int{"score": 0}
	for i, want := range orig {
		got := tb.Rows[i][0].(float64)
		if math.Abs(got-want) > 1e-8 {
			t.Fatalf("row %d: round trip %v -> %v", i, want, got)
		}
		if !p.IsValid(tb.Rows[i], colIx) {
			t.Fatalf("row %d: reversed value %v must satisfy the bound", i, got)
		}
	}
}

func TestBetweenOutOfRangeIsConfigurationError(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline([]metadata.ConstraintSpec{betweenSpec("score", 0, 1)})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	tb := table.New("t", []string{"score"})
	_ = tb.AppendRow([]any{1.5})

	err = p.Transform(tb)
	if err == nil || !strings.Contains(err.Error(), "outside") {
		t.Fatalf("err = %v", err)
	}
}

func TestBetweenIsValid(t *testing.T) {
	t.Parallel()

	c, err := New(betweenSpec("score", 0, 1))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	colIx := map[string]int{"score": 0}
	if !c.IsValid([]any{0.5}, colIx) {
		t.Fatal("0.5 should be valid")
	}
	if c.IsValid([]any{-0.1}, colIx) {
		t.Fatal("-0.1 should be invalid")
	}
}

func TestPositive(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline([]metadata.ConstraintSpec{{Kind: "positive", Columns: []string{"amount"}}})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	tb := table.New("t", []string{"amount"})
	_ = tb.AppendRow([]any{2.0})
	_ = tb.AppendRow([]any{int64(5)})

	if err := p.Transform(tb); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if err := p.ReverseTransform(tb); err != nil {
		t.Fatalf("ReverseTransform: %v", err)
	}
	if got := tb.Rows[0][0].(float64); math.Abs(got-2.0) > 1e-9 {
		t.Fatalf("round trip: %v", got)
	}

	bad := table.New("t", []string{"amount"})
	_ = bad.AppendRow([]any{-1.0})
	if err := p.Transform(bad); err == nil {
		t.Fatal("expected configuration error for negative value")
	}
}

func TestSumDropsAndRestoresColumn(t *testing.T) {
	t.Parallel()

	spec := metadata.ConstraintSpec{
		Kind:    "sum",
		Columns: []string{"total"},
		Options: map[string]any{"operands": []any{"net", "tax"}},
	}
	p, err := NewPipeline([]metadata.ConstraintSpec{spec})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	tb := table.New("t", []string{"net", "total", "tax"})
	_ = tb.AppendRow([]any{10.0, 12.0, 2.0})
	_ = tb.AppendRow([]any{5.0, 5.5, 0.5})

	if err := p.Transform(tb); err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if tb.ColumnIndex("total") >= 0 {
		t.Fatal("derived column should be dropped by transform")
	}

	if err := p.ReverseTransform(tb); err != nil {
		t.Fatalf("ReverseTransform: %v", err)
	}
	if got := tb.Columns[1]; got != "total" {
		t.Fatalf("restored column position = %v", tb.Columns)
	}
	if got := tb.Rows[1][1].(float64); math.Abs(got-5.5) > 1e-9 {
		t.Fatalf("recomputed total = %v", got)
	}

	// A broken formula on raw data is a configuration error.
	bad := table.New("t", []string{"net", "total", "tax"})
	_ = bad.AppendRow([]any{10.0, 99.0, 2.0})
	p2, _ := NewPipeline([]metadata.ConstraintSpec{spec})
	if err := p2.Transform(bad); err == nil {
		t.Fatal("expected configuration error for violated formula")
	}
}

func TestUniqueValidation(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline([]metadata.ConstraintSpec{{Kind: "unique", Columns: []string{"email"}}})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	colIx := map[string]int{"email": 0}

	p.ResetValidation()
	if !p.IsValid([]any{"a@x"}, colIx) {
		t.Fatal("first value should be valid")
	}
	if p.IsValid([]any{"a@x"}, colIx) {
		t.Fatal("repeat value should be invalid")
	}

	p.ResetValidation()
	if !p.IsValid([]any{"a@x"}, colIx) {
		t.Fatal("reset should clear the seen-set")
	}

	dup := table.New("t", []string{"email"})
	_ = dup.AppendRow([]any{"a@x"})
	_ = dup.AppendRow([]any{"a@x"})
	if err := p.Transform(dup); err == nil {
		t.Fatal("expected configuration error for duplicate raw values")
	}
}
