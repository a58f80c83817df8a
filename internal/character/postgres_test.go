package character

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ---------------------------------------------------------------------------
// Test helpers: mock DB types
// ---------------------------------------------------------------------------

type mockRow struct {
	values []any
	err    error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return scanInto(r.values, dest)
}

type mockRows struct {
	data   [][]any
	idx    int
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return nil }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error { return scanInto(r.data[r.idx-1], dest) }

func scanInto(row []any, dest []any) error {
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *[]byte:
			*d = v.([]byte)
		case *int64:
			*d = v.(int64)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

type execCall struct {
	sql  string
	args []any
}

type mockDB struct {
	queryRowFunc func(sql string, args ...any) pgx.Row
	queryFunc    func(sql string, args ...any) (pgx.Rows, error)
	execFunc     func(sql string, args ...any) (pgconn.CommandTag, error)

	execs []execCall
}

func (m *mockDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(sql, args...)
	}
	return &mockRow{err: pgx.ErrNoRows}
}

func (m *mockDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(sql, args...)
	}
	return &mockRows{}, nil
}

func (m *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execs = append(m.execs, execCall{sql: sql, args: args})
	if m.execFunc != nil {
		return m.execFunc(sql, args...)
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

const hpDetail = `{"name":"character","children":[{"name":"Resource","children":[{"name":"HP","value":"12"}]}]}`

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()
	db := &mockDB{}
	if err := NewPostgresStore(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(db.execs) != 1 || db.execs[0].sql != Schema {
		t.Errorf("Migrate executed %v, want the schema", db.execs)
	}
}

func TestPostgresStore_Add(t *testing.T) {
	t.Parallel()

	t.Run("stores detail as JSON", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{}
		c := Character{ID: "mina", Name: "Mina", Player: "u-alice", Detail: &Element{Name: "character"}}
		if _, err := NewPostgresStore(db).Add(context.Background(), c); err != nil {
			t.Fatalf("Add: %v", err)
		}
		args := db.execs[0].args
		if args[0] != "mina" || args[1] != "Mina" || args[2] != "u-alice" {
			t.Errorf("args = %v", args)
		}
		if got := string(args[3].([]byte)); got != `{"name":"character"}` {
			t.Errorf("detail = %s", got)
		}
	})

	t.Run("generates an id", func(t *testing.T) {
		t.Parallel()
		c, err := NewPostgresStore(&mockDB{}).Add(context.Background(), Character{Name: "Anon"})
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		if len(c.ID) != 32 {
			t.Errorf("generated ID = %q", c.ID)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{execFunc: func(string, ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505"}
		}}
		_, err := NewPostgresStore(db).Add(context.Background(), Character{ID: "mina", Name: "Mina"})
		if !errors.Is(err, ErrDuplicateID) {
			t.Errorf("Add duplicate = %v, want ErrDuplicateID", err)
		}
	})
}

func TestPostgresStore_Get(t *testing.T) {
	t.Parallel()

	db := &mockDB{queryRowFunc: func(_ string, args ...any) pgx.Row {
		if args[0] != "mina" {
			return &mockRow{err: pgx.ErrNoRows}
		}
		return &mockRow{values: []any{"mina", "Mina", "u-alice", []byte(hpDetail), int64(3)}}
	}}
	s := NewPostgresStore(db)

	c, err := s.Get(context.Background(), "mina")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if hp := c.Detail.FirstByName("HP"); hp == nil || hp.Value != "12" {
		t.Errorf("HP = %+v, want 12", hp)
	}
	if _, err := s.Get(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(nobody) = %v, want ErrNotFound", err)
	}
}

func TestPostgresStore_FindByPlayer(t *testing.T) {
	t.Parallel()

	queried := false
	db := &mockDB{queryRowFunc: func(_ string, args ...any) pgx.Row {
		queried = true
		return &mockRow{values: []any{"mina", "Mina", args[0].(string), []byte("null")}}
	}}
	s := NewPostgresStore(db)

	if _, err := s.FindByPlayer(context.Background(), ""); !errors.Is(err, ErrNotFound) || queried {
		t.Errorf("FindByPlayer(\"\") = %v (queried %v), want ErrNotFound without a query", err, queried)
	}
	c, err := s.FindByPlayer(context.Background(), "u-alice")
	if err != nil {
		t.Fatalf("FindByPlayer: %v", err)
	}
	if c.ID != "mina" || c.Detail != nil {
		t.Errorf("character = %+v", c)
	}
}

func TestPostgresStore_List(t *testing.T) {
	t.Parallel()

	rows := &mockRows{data: [][]any{
		{"jon", "Jonathan", "", []byte(nil)},
		{"mina", "Mina", "u-alice", []byte(hpDetail)},
	}}
	db := &mockDB{queryFunc: func(string, ...any) (pgx.Rows, error) { return rows, nil }}

	cs, err := NewPostgresStore(db).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(cs) != 2 || cs[0].ID != "jon" || cs[1].Detail.FirstByName("HP") == nil {
		t.Errorf("List = %+v", cs)
	}
	if !rows.closed {
		t.Error("rows not closed")
	}
}

func TestPostgresStore_Update(t *testing.T) {
	t.Parallel()

	row := func(string, ...any) pgx.Row {
		return &mockRow{values: []any{"mina", "Mina", "u-alice", []byte(hpDetail), int64(7)}}
	}
	setHP := func(v string) func(*Character) error {
		return func(c *Character) error {
			c.Detail.FirstByName("HP").Value = v
			return nil
		}
	}

	t.Run("retries after a lost race", func(t *testing.T) {
		t.Parallel()
		tags := []string{"UPDATE 0", "UPDATE 1"}
		db := &mockDB{queryRowFunc: row, execFunc: func(string, ...any) (pgconn.CommandTag, error) {
			tag := tags[0]
			tags = tags[1:]
			return pgconn.NewCommandTag(tag), nil
		}}
		calls := 0
		err := NewPostgresStore(db).Update(context.Background(), "mina", func(c *Character) error {
			calls++
			return setHP("9")(c)
		})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if calls != 2 {
			t.Errorf("fn ran %d times, want 2", calls)
		}
		last := db.execs[len(db.execs)-1]
		if !strings.Contains(string(last.args[3].([]byte)), `"value":"9"`) || last.args[4] != int64(7) {
			t.Errorf("update args = %v", last.args)
		}
	})

	t.Run("gives up on persistent conflicts", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{queryRowFunc: row, execFunc: func(string, ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		}}
		err := NewPostgresStore(db).Update(context.Background(), "mina", setHP("1"))
		if !errors.Is(err, ErrConflict) {
			t.Errorf("Update = %v, want ErrConflict", err)
		}
		if len(db.execs) != maxUpdateAttempts {
			t.Errorf("attempts = %d, want %d", len(db.execs), maxUpdateAttempts)
		}
	})

	t.Run("fn error discards the change", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{queryRowFunc: row}
		boom := errors.New("boom")
		if err := NewPostgresStore(db).Update(context.Background(), "mina", func(*Character) error { return boom }); !errors.Is(err, boom) {
			t.Errorf("Update = %v, want boom", err)
		}
		if len(db.execs) != 0 {
			t.Errorf("executed %d statements, want none", len(db.execs))
		}
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		if err := NewPostgresStore(&mockDB{}).Update(context.Background(), "x", setHP("1")); !errors.Is(err, ErrNotFound) {
			t.Errorf("Update = %v, want ErrNotFound", err)
		}
	})
}

func TestPostgresStore_Remove(t *testing.T) {
	t.Parallel()
	db := &mockDB{execFunc: func(string, ...any) (pgconn.CommandTag, error) {
		return pgconn.NewCommandTag("DELETE 0"), nil
	}}
	if err := NewPostgresStore(db).Remove(context.Background(), "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Remove = %v, want ErrNotFound", err)
	}
}

func TestPostgresStore_BulkImport(t *testing.T) {
	t.Parallel()

	// The second character already exists and keeps its stored values.
	tags := []string{"INSERT 0 1", "INSERT 0 0", "INSERT 0 1"}
	db := &mockDB{execFunc: func(string, ...any) (pgconn.CommandTag, error) {
		tag := tags[0]
		tags = tags[1:]
		return pgconn.NewCommandTag(tag), nil
	}}
	n, err := NewPostgresStore(db).BulkImport(context.Background(), []Character{
		{ID: "a", Name: "A"}, {ID: "b", Name: "B"}, {Name: "C"},
	})
	if err != nil {
		t.Fatalf("BulkImport: %v", err)
	}
	if n != 2 {
		t.Errorf("imported %d, want 2", n)
	}
	if !strings.Contains(db.execs[0].sql, "ON CONFLICT (id) DO NOTHING") {
		t.Errorf("import statement = %s", db.execs[0].sql)
	}
}
