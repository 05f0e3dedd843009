package credential

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeRow implements pgx.Row.
type fakeRow struct {
	key string
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.key
	return nil
}

// fakeDB emulates the single-row table well enough for the store's queries.
type fakeDB struct {
	mu      sync.Mutex
	key     string
	execErr error
	execs   []string
}

func (d *fakeDB) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.key == "" {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{key: d.key}
}

func (d *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.execs = append(d.execs, sql)
	if d.execErr != nil {
		return pgconn.CommandTag{}, d.execErr
	}
	switch {
	case strings.Contains(sql, "INSERT"):
		d.key = args[0].(string)
	case strings.Contains(sql, "DELETE"):
		d.key = ""
	}
	return pgconn.CommandTag{}, nil
}

func TestPostgresStore(t *testing.T) {
	t.Parallel()
	exerciseStore(t, NewPostgresStore(&fakeDB{}))
}

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()
	db := &fakeDB{}
	if err := NewPostgresStore(db).Migrate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(db.execs) != 1 || !strings.Contains(db.execs[0], "CREATE TABLE IF NOT EXISTS thoughtmap_credentials") {
		t.Fatalf("execs = %v", db.execs)
	}
}

func TestPostgresStore_Errors(t *testing.T) {
	t.Parallel()
	boom := errors.New("connection refused")
	s := NewPostgresStore(&fakeDB{execErr: boom})
	ctx := context.Background()

	if err := s.Save(ctx, validKey); !errors.Is(err, boom) {
		t.Errorf("Save = %v", err)
	}
	if err := s.Remove(ctx); !errors.Is(err, boom) {
		t.Errorf("Remove = %v", err)
	}
	if err := s.Migrate(ctx); !errors.Is(err, boom) {
		t.Errorf("Migrate = %v", err)
	}
}
