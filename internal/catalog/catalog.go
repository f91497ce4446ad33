// Package catalog persists table metadata — name, schema, and page ids
// — as a single JSON blob in page 0 of the database file.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hoangtv090103/godb/internal/rowcodec"
	"github.com/hoangtv090103/godb/internal/storage"
)

// RootPageID is the reserved page holding the catalog blob.
const RootPageID storage.PageID = 0

// columnJSON is the on-disk representation of rowcodec.Column.
type columnJSON struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type schemaJSON struct {
	Columns []columnJSON `json:"columns"`
}

type tableJSON struct {
	Schema     schemaJSON `json:"schema"`
	AllPageIDs []int32    `json:"all_page_ids"`
}

// TableMetadata is a table's schema plus the ordered page ids of its
// Table Heap.
type TableMetadata struct {
	Name    string
	Schema  rowcodec.Schema
	PageIDs []storage.PageID
}

// Catalog manages table metadata for one database file, persisted
// in page 0 via the buffer pool.
type Catalog struct {
	mu     sync.Mutex
	pool   *storage.BufferPoolManager
	tables map[string]*TableMetadata
	log    *slog.Logger
}

// Open loads the catalog from page 0, or starts empty if the page has
// no valid JSON (a fresh database).
func Open(pool *storage.BufferPoolManager) (*Catalog, error) {
	c := &Catalog{
		pool:   pool,
		tables: make(map[string]*TableMetadata),
		log:    slog.Default().With("component", "catalog"),
	}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) load() error {
	page, ok := c.pool.FetchPage(RootPageID)
	if !ok {
		return fmt.Errorf("catalog: could not fetch root page %d", RootPageID)
	}
	defer c.pool.UnpinPage(RootPageID, false)

	trimmed := bytes.TrimRight(page.Data(), "\x00")
	if len(trimmed) == 0 {
		return nil
	}

	var raw map[string]tableJSON
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		c.log.Warn("could not deserialize catalog page, starting empty", "err", err)
		return nil
	}
	for name, t := range raw {
		cols := make([]rowcodec.Column, len(t.Schema.Columns))
		for i, col := range t.Schema.Columns {
			ct, n, err := rowcodec.ParseColumnType(col.Type)
			if err != nil {
				return fmt.Errorf("catalog: table %q: %w", name, err)
			}
			cols[i] = rowcodec.Column{Name: col.Name, Type: ct, N: n}
		}
		pageIDs := make([]storage.PageID, len(t.AllPageIDs))
		for i, id := range t.AllPageIDs {
			pageIDs[i] = storage.PageID(id)
		}
		c.tables[name] = &TableMetadata{
			Name:    name,
			Schema:  rowcodec.Schema{Columns: cols},
			PageIDs: pageIDs,
		}
	}
	return nil
}

// persist re-encodes every table's metadata and writes it to page 0,
// zero-padded. Fails (FATAL in the original) if the encoded catalog
// does not fit in one page — this core has no multi-page catalog.
func (c *Catalog) persist() error {
	raw := make(map[string]tableJSON, len(c.tables))
	for name, t := range c.tables {
		cols := make([]columnJSON, len(t.Schema.Columns))
		for i, col := range t.Schema.Columns {
			typeStr := col.Type.String()
			if col.Type == rowcodec.Varchar {
				typeStr = fmt.Sprintf("VARCHAR(%d)", col.N)
			}
			cols[i] = columnJSON{Name: col.Name, Type: typeStr}
		}
		pageIDs := make([]int32, len(t.PageIDs))
		for i, id := range t.PageIDs {
			pageIDs[i] = int32(id)
		}
		raw[name] = tableJSON{Schema: schemaJSON{Columns: cols}, AllPageIDs: pageIDs}
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("catalog: encode: %w", err)
	}
	if len(encoded) > storage.PageSize {
		return fmt.Errorf("catalog: FATAL: serialized catalog (%d bytes) exceeds page size %d; multi-page catalogs are not supported", len(encoded), storage.PageSize)
	}

	page, ok := c.pool.FetchPage(RootPageID)
	if !ok {
		return fmt.Errorf("catalog: could not fetch root page %d to persist", RootPageID)
	}
	buf := page.Data()
	for i := range buf {
		buf[i] = 0
	}
	copy(buf, encoded)
	return c.pool.UnpinPage(RootPageID, true)
}

// CreateTable allocates the table's first data page, registers its
// schema, and persists the catalog. Returns an error if the table
// already exists or the first page cannot be allocated.
func (c *Catalog) CreateTable(name string, schema rowcodec.Schema) (*TableMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tables[name]; exists {
		return nil, fmt.Errorf("catalog: table %q already exists", name)
	}

	firstPage, ok := c.pool.NewPage()
	if !ok {
		return nil, fmt.Errorf("catalog: could not allocate first page for table %q: %w", name, storage.ErrPoolExhausted)
	}
	firstID := firstPage.ID()
	storage.WrapSlottedPage(firstPage.Data()).Initialize()
	if err := c.pool.UnpinPage(firstID, true); err != nil {
		return nil, err
	}

	meta := &TableMetadata{Name: name, Schema: schema, PageIDs: []storage.PageID{firstID}}
	c.tables[name] = meta
	if err := c.persist(); err != nil {
		delete(c.tables, name)
		c.pool.DeletePage(firstID)
		return nil, err
	}
	return meta, nil
}

// GetTableMetadata returns the named table's metadata, or false if it
// does not exist.
func (c *Catalog) GetTableMetadata(name string) (*TableMetadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[name]
	return t, ok
}

// GetTableHeap returns a TableHeap for the named table, backed by a
// copy of its current page id list, or false if the table is unknown.
func (c *Catalog) GetTableHeap(name string) (*storage.TableHeap, bool) {
	t, ok := c.GetTableMetadata(name)
	if !ok {
		return nil, false
	}
	return storage.NewTableHeap(c.pool, t.PageIDs), true
}

// RecordNewHeapPage appends pageID to a table's page list and
// persists the catalog. Called by the execution layer after a
// TableHeap insert grows the heap.
func (c *Catalog) RecordNewHeapPage(name string, pageID storage.PageID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tables[name]
	if !ok {
		return fmt.Errorf("catalog: unknown table %q", name)
	}
	for _, id := range t.PageIDs {
		if id == pageID {
			return nil
		}
	}
	t.PageIDs = append(t.PageIDs, pageID)
	return c.persist()
}

// ListTables returns every known table name.
func (c *Catalog) ListTables() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	return names
}
