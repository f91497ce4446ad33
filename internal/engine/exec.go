package engine

import (
	"fmt"
	"log/slog"

	"github.com/hoangtv090103/godb/internal/catalog"
	"github.com/hoangtv090103/godb/internal/rowcodec"
	"github.com/hoangtv090103/godb/internal/storage"
)

// Row is a decoded tuple paired with its record id.
type Row struct {
	RID    storage.RID
	Values []any
}

// Result is the outcome of executing one statement: either a status
// message (CREATE TABLE, INSERT, DELETE) or a set of rows (SELECT).
type Result struct {
	Message string
	Columns []string
	Rows    []Row
}

// Executor dispatches parsed commands against a catalog and its
// backing table heaps. It performs no query optimization: SELECT is a
// direct scan → filter → projection pipeline.
type Executor struct {
	catalog *catalog.Catalog
	log     *slog.Logger
}

// NewExecutor constructs an Executor over cat.
func NewExecutor(cat *catalog.Catalog) *Executor {
	return &Executor{catalog: cat, log: slog.Default().With("component", "executor")}
}

// Execute runs one parsed command and returns its result.
func (e *Executor) Execute(cmd *ParsedCommand) (*Result, error) {
	switch cmd.Type {
	case CreateTable:
		return e.execCreateTable(cmd)
	case Insert:
		return e.execInsert(cmd)
	case Select:
		return e.execSelect(cmd)
	case Delete:
		return e.execDelete(cmd)
	default:
		return nil, fmt.Errorf("engine: unknown command type")
	}
}

func (e *Executor) execCreateTable(cmd *ParsedCommand) (*Result, error) {
	cols := make([]rowcodec.Column, len(cmd.ColumnDefs))
	for i, def := range cmd.ColumnDefs {
		ct, n, err := rowcodec.ParseColumnType(def[1])
		if err != nil {
			return nil, fmt.Errorf("create table %q: %w", cmd.TableName, err)
		}
		cols[i] = rowcodec.Column{Name: def[0], Type: ct, N: n}
	}
	if _, err := e.catalog.CreateTable(cmd.TableName, rowcodec.Schema{Columns: cols}); err != nil {
		return nil, err
	}
	return &Result{Message: fmt.Sprintf("table %q created", cmd.TableName)}, nil
}

func (e *Executor) execInsert(cmd *ParsedCommand) (*Result, error) {
	meta, ok := e.catalog.GetTableMetadata(cmd.TableName)
	if !ok {
		return nil, fmt.Errorf("table %q not found", cmd.TableName)
	}
	heap, ok := e.catalog.GetTableHeap(cmd.TableName)
	if !ok {
		return nil, fmt.Errorf("could not open table heap for %q", cmd.TableName)
	}

	data, err := rowcodec.EncodeRow(meta.Schema, cmd.Values)
	if err != nil {
		return nil, fmt.Errorf("insert into %q: %w", cmd.TableName, err)
	}

	rid, ok := heap.InsertRecord(data)
	if !ok {
		return nil, fmt.Errorf("insert into %q: failed (pool exhausted)", cmd.TableName)
	}

	// If the insert grew the heap with a page the catalog doesn't know
	// about yet, record it.
	known := false
	for _, pid := range meta.PageIDs {
		if pid == rid.PageID {
			known = true
			break
		}
	}
	if !known {
		if err := e.catalog.RecordNewHeapPage(cmd.TableName, rid.PageID); err != nil {
			return nil, fmt.Errorf("insert into %q: %w", cmd.TableName, err)
		}
	}
	return &Result{Message: "1 row inserted"}, nil
}

func (e *Executor) execSelect(cmd *ParsedCommand) (*Result, error) {
	meta, ok := e.catalog.GetTableMetadata(cmd.TableName)
	if !ok {
		return nil, fmt.Errorf("table %q not found", cmd.TableName)
	}
	heap, ok := e.catalog.GetTableHeap(cmd.TableName)
	if !ok {
		return nil, fmt.Errorf("could not open table heap for %q", cmd.TableName)
	}

	indices, columns, err := projectionIndices(cmd.SelectColumns, meta.Schema)
	if err != nil {
		return nil, err
	}

	var pred func([]any) bool
	if cmd.Filter != nil {
		pred, err = buildPredicate(*cmd.Filter, meta.Schema)
		if err != nil {
			return nil, err
		}
	}

	it := heap.Iterator()
	defer it.Close()

	var rows []Row
	for {
		rid, data, ok := it.Next()
		if !ok {
			break
		}
		values, err := rowcodec.DecodeRow(meta.Schema, data)
		if err != nil {
			e.log.Warn("skipping undecodable row", "table", cmd.TableName, "err", err)
			continue
		}
		if pred != nil && !pred(values) {
			continue
		}
		rows = append(rows, Row{RID: rid, Values: project(values, indices)})
	}
	return &Result{Columns: columns, Rows: rows}, nil
}

func (e *Executor) execDelete(cmd *ParsedCommand) (*Result, error) {
	meta, ok := e.catalog.GetTableMetadata(cmd.TableName)
	if !ok {
		return nil, fmt.Errorf("table %q not found", cmd.TableName)
	}
	heap, ok := e.catalog.GetTableHeap(cmd.TableName)
	if !ok {
		return nil, fmt.Errorf("could not open table heap for %q", cmd.TableName)
	}

	pred, err := buildPredicate(*cmd.Filter, meta.Schema)
	if err != nil {
		return nil, err
	}

	it := heap.Iterator()
	var toDelete []storage.RID
	for {
		rid, data, ok := it.Next()
		if !ok {
			break
		}
		values, err := rowcodec.DecodeRow(meta.Schema, data)
		if err != nil {
			continue
		}
		if pred(values) {
			toDelete = append(toDelete, rid)
		}
	}
	it.Close()

	count := 0
	for _, rid := range toDelete {
		if heap.DeleteRecord(rid) {
			count++
		}
	}
	return &Result{Message: fmt.Sprintf("%d row(s) deleted", count)}, nil
}

// projectionIndices resolves select columns ("*" or explicit names)
// into schema column indices.
func projectionIndices(selectColumns []string, schema rowcodec.Schema) ([]int, []string, error) {
	if len(selectColumns) == 1 && selectColumns[0] == "*" {
		indices := make([]int, len(schema.Columns))
		names := make([]string, len(schema.Columns))
		for i, c := range schema.Columns {
			indices[i] = i
			names[i] = c.Name
		}
		return indices, names, nil
	}
	indices := make([]int, 0, len(selectColumns))
	for _, name := range selectColumns {
		idx, err := columnIndex(schema, name)
		if err != nil {
			return nil, nil, err
		}
		indices = append(indices, idx)
	}
	return indices, selectColumns, nil
}

func project(values []any, indices []int) []any {
	out := make([]any, len(indices))
	for i, idx := range indices {
		out[i] = values[idx]
	}
	return out
}

func columnIndex(schema rowcodec.Schema, name string) (int, error) {
	for i, c := range schema.Columns {
		if c.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown column %q", name)
}

// buildPredicate compiles a FilterCondition into a row predicate
// closed over the resolved column index.
func buildPredicate(f FilterCondition, schema rowcodec.Schema) (func([]any) bool, error) {
	idx, err := columnIndex(schema, f.Column)
	if err != nil {
		return nil, err
	}
	return func(values []any) bool {
		return compareValues(values[idx], f.Operator, f.Value)
	}, nil
}

func compareValues(lhs any, op string, rhs any) bool {
	switch l := lhs.(type) {
	case int32:
		r, ok := rhs.(int32)
		if !ok {
			return false
		}
		return applyOp(op, int(l)-int(r))
	case bool:
		r, ok := rhs.(bool)
		if !ok {
			return false
		}
		if l == r {
			return applyOp(op, 0)
		}
		return applyOp(op, 1)
	case string:
		r, ok := rhs.(string)
		if !ok {
			return false
		}
		switch {
		case l < r:
			return applyOp(op, -1)
		case l > r:
			return applyOp(op, 1)
		default:
			return applyOp(op, 0)
		}
	default:
		return false
	}
}

func applyOp(op string, cmp int) bool {
	switch op {
	case "=":
		return cmp == 0
	case "!=", "<>":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	default:
		return false
	}
}
