package engine

import (
	"path/filepath"
	"testing"

	"github.com/hoangtv090103/godb/internal/catalog"
	"github.com/hoangtv090103/godb/internal/storage"
)

func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exec.db")
	dm, err := storage.OpenDiskManager(storage.DiskManagerConfig{Path: path})
	if err != nil {
		t.Fatalf("OpenDiskManager: %v", err)
	}
	t.Cleanup(func() { dm.Shutdown() })
	pool := storage.NewBufferPoolManager(dm, storage.NewLRUReplacer(), storage.BufferPoolConfig{PoolSize: 16})

	page, ok := pool.NewPage()
	if !ok || page.ID() != catalog.RootPageID {
		t.Fatalf("could not allocate catalog root page")
	}
	pool.UnpinPage(page.ID(), true)

	cat, err := catalog.Open(pool)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	return cat
}

func mustExec(t *testing.T, ex *Executor, sql string) *Result {
	t.Helper()
	cmd, err := Parse(sql)
	if err != nil {
		t.Fatalf("Parse(%q): %v", sql, err)
	}
	res, err := ex.Execute(cmd)
	if err != nil {
		t.Fatalf("Execute(%q): %v", sql, err)
	}
	return res
}

func TestExecutorCreateInsertSelect(t *testing.T) {
	cat := newTestCatalog(t)
	ex := NewExecutor(cat)

	mustExec(t, ex, "CREATE TABLE users (id INTEGER, name VARCHAR(32))")
	mustExec(t, ex, "INSERT INTO users VALUES (1, 'alice')")
	mustExec(t, ex, "INSERT INTO users VALUES (2, 'bob')")

	res := mustExec(t, ex, "SELECT * FROM users")
	if len(res.Rows) != 2 {
		t.Fatalf("SELECT * returned %d rows, want 2", len(res.Rows))
	}
}

func TestExecutorSelectWithFilterAndProjection(t *testing.T) {
	cat := newTestCatalog(t)
	ex := NewExecutor(cat)

	mustExec(t, ex, "CREATE TABLE users (id INTEGER, name VARCHAR(32))")
	mustExec(t, ex, "INSERT INTO users VALUES (1, 'alice')")
	mustExec(t, ex, "INSERT INTO users VALUES (2, 'bob')")

	res := mustExec(t, ex, "SELECT name FROM users WHERE id = 2")
	if len(res.Rows) != 1 {
		t.Fatalf("filtered SELECT returned %d rows, want 1", len(res.Rows))
	}
	if len(res.Columns) != 1 || res.Columns[0] != "name" {
		t.Fatalf("Columns = %v, want [name]", res.Columns)
	}
	if res.Rows[0].Values[0].(string) != "bob" {
		t.Fatalf("row value = %v, want \"bob\"", res.Rows[0].Values[0])
	}
}

func TestExecutorDelete(t *testing.T) {
	cat := newTestCatalog(t)
	ex := NewExecutor(cat)

	mustExec(t, ex, "CREATE TABLE t (id INTEGER)")
	mustExec(t, ex, "INSERT INTO t VALUES (1)")
	mustExec(t, ex, "INSERT INTO t VALUES (2)")
	mustExec(t, ex, "INSERT INTO t VALUES (3)")

	res := mustExec(t, ex, "DELETE FROM t WHERE id = 2")
	if res.Message != "1 row(s) deleted" {
		t.Fatalf("DELETE message = %q, want \"1 row(s) deleted\"", res.Message)
	}

	remaining := mustExec(t, ex, "SELECT * FROM t")
	if len(remaining.Rows) != 2 {
		t.Fatalf("remaining rows = %d, want 2", len(remaining.Rows))
	}
}

func TestExecutorInsertIntoUnknownTable(t *testing.T) {
	cat := newTestCatalog(t)
	ex := NewExecutor(cat)
	cmd, err := Parse("INSERT INTO ghost VALUES (1)")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := ex.Execute(cmd); err == nil {
		t.Fatalf("INSERT into an unknown table: want error, got nil")
	}
}

func TestExecutorRecordsNewHeapPageInCatalog(t *testing.T) {
	cat := newTestCatalog(t)
	ex := NewExecutor(cat)

	mustExec(t, ex, "CREATE TABLE big (name VARCHAR(64))")
	meta, _ := cat.GetTableMetadata("big")
	initialPages := len(meta.PageIDs)

	// Insert enough large rows to force the heap onto a new page.
	long := make([]byte, 60)
	for i := range long {
		long[i] = 'x'
	}
	for i := 0; i < 80; i++ {
		mustExec(t, ex, "INSERT INTO big VALUES ('"+string(long)+"')")
	}

	meta, _ = cat.GetTableMetadata("big")
	if len(meta.PageIDs) <= initialPages {
		t.Fatalf("catalog PageIDs did not grow: still %d pages after 80 inserts", len(meta.PageIDs))
	}

	res := mustExec(t, ex, "SELECT * FROM big")
	if len(res.Rows) != 80 {
		t.Fatalf("SELECT * returned %d rows, want 80", len(res.Rows))
	}
}
