package sampler

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"

	"synthdb/internal/constraint"
	"synthdb/internal/graph"
	"synthdb/internal/metadata"
	"synthdb/internal/modeler"
	"synthdb/internal/table"
)

const usersOrdersJSON = `{
  "tables": [
    {
      "name": "users",
      "primary_key": "id",
      "fields": [
        {"name": "id", "type": "id", "subtype": "integer"},
        {"name": "age", "type": "numerical", "subtype": "float"}
      ]
    },
    {
      "name": "orders",
      "primary_key": "id",
      "fields": [
        {"name": "id", "type": "id", "subtype": "integer"},
        {"name": "user_id", "type": "id", "subtype": "integer", "ref": {"table": "users", "field": "id"}},
        {"name": "amount", "type": "numerical", "subtype": "float"}
      ]
    }
  ]
}`

// Every user has exactly three orders, so the fitted count distribution is
// a point mass and sampled subtree sizes are predictable.
func fitFixture(t *testing.T) *modeler.Fitted {
	t.Helper()
	spec, err := metadata.Parse([]byte(usersOrdersJSON))
	require.NoError(t, err)
	g, err := graph.Build(spec)
	require.NoError(t, err)

	users := table.New("users", []string{"id", "age"})
	orders := table.New("orders", []string{"id", "user_id", "amount"})
	oid := int64(100)
	for u := int64(1); u <= 3; u++ {
		users.Rows = append(users.Rows, []any{u, 20.0 + float64(u)*7})
		for k := 0; k < 3; k++ {
			orders.Rows = append(orders.Rows, []any{oid, u, 10.0 + float64(oid%7)})
			oid++
		}
	}

	fitted, err := modeler.New().Fit(spec, g, map[string]*table.Table{"users": users, "orders": orders}, nil, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	return fitted
}

func TestSampleWithChildren(t *testing.T) {
	fitted := fitFixture(t)
	s := New(fitted, rand.New(rand.NewSource(2)))

	res, err := s.Sample("users", 5, true)
	require.NoError(t, err)

	users := res.Tables["users"]
	require.NotNil(t, users)
	assert.Equal(t, []string{"id", "age"}, users.Columns)
	require.Len(t, users.Rows, 5)

	seen := make(map[int64]bool)
	for _, row := range users.Rows {
		id, ok := row[0].(int64)
		require.True(t, ok, "primary key should be int64, got %T", row[0])
		assert.False(t, seen[id], "duplicate primary key %d", id)
		seen[id] = true
	}

	orders := res.Tables["orders"]
	require.NotNil(t, orders)
	assert.Equal(t, []string{"id", "user_id", "amount"}, orders.Columns)
	assert.Equal(t, 15, orders.NumRows(), "each user carries three orders")
	for _, row := range orders.Rows {
		uid, ok := row[1].(int64)
		require.True(t, ok)
		assert.True(t, seen[uid], "order references unknown user %d", uid)
	}
}

func TestSampleWithoutChildren(t *testing.T) {
	fitted := fitFixture(t)
	s := New(fitted, rand.New(rand.NewSource(3)))

	res, err := s.Sample("users", 2, false)
	require.NoError(t, err)
	require.Len(t, res.Tables["users"].Rows, 2)
	assert.Nil(t, res.Tables["orders"])
}

func TestSampleChildStandalone(t *testing.T) {
	fitted := fitFixture(t)
	s := New(fitted, rand.New(rand.NewSource(4)))

	// Sampling orders directly synthesizes a users pool first so that
	// user_id never dangles.
	res, err := s.Sample("orders", 4, false)
	require.NoError(t, err)

	orders := res.Tables["orders"]
	require.Len(t, orders.Rows, 4)
	users := res.Tables["users"]
	require.NotNil(t, users, "parent pool should be generated")

	pool := make(map[int64]bool)
	for _, row := range users.Rows {
		pool[row[0].(int64)] = true
	}
	for _, row := range orders.Rows {
		assert.True(t, pool[row[1].(int64)])
	}
}

func TestSampleAll(t *testing.T) {
	fitted := fitFixture(t)
	s := New(fitted, rand.New(rand.NewSource(5)))

	res, err := s.SampleAll(4)
	require.NoError(t, err)
	require.Len(t, res.Tables["users"].Rows, 4)
	assert.Equal(t, 12, res.Tables["orders"].NumRows())
}

func TestSampleDefaultRowCount(t *testing.T) {
	fitted := fitFixture(t)
	s := New(fitted, rand.New(rand.NewSource(6)))

	res, err := s.Sample("users", 0, false)
	require.NoError(t, err)
	assert.Len(t, res.Tables["users"].Rows, 3)
}

func TestSampleUnknownTable(t *testing.T) {
	fitted := fitFixture(t)
	s := New(fitted, rand.New(rand.NewSource(7)))
	_, err := s.Sample("nope", 1, false)
	require.Error(t, err)
}

func TestResetKeys(t *testing.T) {
	fitted := fitFixture(t)
	s := New(fitted, rand.New(rand.NewSource(8)))

	res, err := s.Sample("users", 2, false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Tables["users"].Rows[0][0])
	assert.Equal(t, int64(1), res.Tables["users"].Rows[1][0])

	res, err = s.Sample("users", 1, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Tables["users"].Rows[0][0])

	s.ResetKeys()
	res, err = s.Sample("users", 1, false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Tables["users"].Rows[0][0])
}

// rejectAll fails validation for every row while leaving the data untouched,
// so each sampled row burns through the whole retry budget.
type rejectAll struct{}

func (rejectAll) Kind() string                        { return "reject_all" }
func (rejectAll) Columns() []string                   { return nil }
func (rejectAll) Transform(*table.Table) error        { return nil }
func (rejectAll) ReverseTransform(*table.Table) error { return nil }
func (rejectAll) IsValid([]any, map[string]int) bool  { return false }

func TestSampleRetryExhaustionWarns(t *testing.T) {
	fitted := fitFixture(t)
	fitted.Tables["users"].Constraints = constraint.Pipeline{rejectAll{}}

	s := New(fitted, rand.New(rand.NewSource(9)))
	s.RetryBudget = 3

	res, err := s.Sample("users", 2, false)
	require.NoError(t, err)

	// Best-effort rows are kept despite failing validation.
	require.Len(t, res.Tables["users"].Rows, 2)

	require.NotEmpty(t, res.Warnings, "budget exhaustion must surface as a warning")
	found := false
	for _, w := range res.Warnings {
		if w.Table == "users" && strings.Contains(w.Message, "retry budget exhausted") {
			found = true
		}
	}
	assert.True(t, found, "warnings: %v", res.Warnings)
	assert.Len(t, res.Warnings, 1, "repeated exhaustion is reported once per table")
}

func TestSampleSkipsSubtreeOnBadParams(t *testing.T) {
	fitted := fitFixture(t)
	// Misalign the extension block so the conditional child model rejects
	// its parameter vector.
	fitted.Tables["users"].Blocks[0].ChildDims++

	s := New(fitted, rand.New(rand.NewSource(10)))
	res, err := s.Sample("users", 4, true)
	require.NoError(t, err)

	require.Len(t, res.Tables["users"].Rows, 4, "parents survive a failed child subtree")
	assert.Nil(t, res.Tables["orders"], "the broken subtree is omitted, not partially filled")

	require.NotEmpty(t, res.Warnings)
	found := false
	for _, w := range res.Warnings {
		if w.Table == "orders" && strings.Contains(w.Message, "skipping subtree") {
			found = true
		}
	}
	assert.True(t, found, "warnings: %v", res.Warnings)
}

func TestSampleConcurrent(t *testing.T) {
	fitted := fitFixture(t)
	s := New(fitted, rand.New(rand.NewSource(11)))

	const workers = 8
	results := make([]*Result, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		i := i
		go func() {
			defer wg.Done()
			results[i], errs[i] = s.Sample("users", 10, true)
		}()
	}
	wg.Wait()

	seen := make(map[int64]bool)
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		users := results[i].Tables["users"]
		require.Len(t, users.Rows, 10)
		pool := make(map[int64]bool)
		for _, row := range users.Rows {
			id := row[0].(int64)
			assert.False(t, seen[id], "primary key %d issued twice across runs", id)
			seen[id] = true
			pool[id] = true
		}
		for _, row := range results[i].Tables["orders"].Rows {
			assert.True(t, pool[row[1].(int64)], "order must reference its own run's users")
		}
	}
}

func TestKeyAllocator(t *testing.T) {
	a := NewKeyAllocator()
	assert.Equal(t, int64(0), a.NextInt("t"))
	assert.Equal(t, int64(1), a.NextInt("t"))
	assert.Equal(t, int64(0), a.NextInt("other"))

	s1 := a.NextString("t")
	s2 := a.NextString("t")
	assert.NotEmpty(t, s1)
	assert.NotEqual(t, s1, s2)

	a.Reset()
	assert.Equal(t, int64(0), a.NextInt("t"))
}
