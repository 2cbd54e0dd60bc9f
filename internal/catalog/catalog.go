/*
Package catalog implements the schema catalog (C9), an extension this
build adds to resolve spec's open question on schema persistence: table
declarations are marshaled to JSON and written into a chain of pages
addressed from the data file's header (internal/store's CatalogRoot
field), rather than to sidecar files.

Grounded on storage_engine/catalog's JSON-schema-per-table persistence
style (encoding/json, one schema struct per table) and
checkpoint_manager's pattern of writing a full replacement image rather
than patching in place; adapted from per-table files to a single
page-chain blob since this store has no filesystem directory to keep
sidecar files in, only pages.
*/
package catalog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"mde/internal/enginerr"
	"mde/internal/page"
	"mde/internal/store"
	"mde/internal/value"
)

// Column describes one column of a declared table.
type Column struct {
	Name string     `json:"name"`
	Type value.Type `json:"type"`
}

// Schema is a table's declared shape: its key column's type (used to
// construct the underlying B+ tree) and its full column list.
type Schema struct {
	Table     string     `json:"table"`
	KeyColumn string     `json:"key_column"`
	KeyType   value.Type `json:"key_type"`
	Columns   []Column   `json:"columns"`
}

// Catalog holds every declared table's schema, persisted as one blob
// in the backing store.
type Catalog struct {
	st *store.Store

	mu      sync.RWMutex
	schemas map[string]Schema
}

// Open loads the catalog from st's CatalogRoot page chain, if any has
// been declared yet, or returns an empty catalog otherwise.
func Open(st *store.Store) (*Catalog, error) {
	c := &Catalog{st: st, schemas: make(map[string]Schema)}
	root := st.CatalogRoot()
	if root == 0 {
		return c, nil
	}
	blob, err := readBlob(st, root)
	if err != nil {
		return nil, fmt.Errorf("catalog: load: %w", err)
	}
	var list []Schema
	if err := json.Unmarshal(blob, &list); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", enginerr.ErrCatalogCorrupted)
	}
	for _, s := range list {
		c.schemas[s.Table] = s
	}
	return c, nil
}

// Declare registers a new table's schema and persists the updated
// catalog. Redeclaring an existing table name is an error.
func (c *Catalog) Declare(s Schema) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.schemas[s.Table]; exists {
		return fmt.Errorf("catalog: table %q: %w", s.Table, enginerr.ErrDuplicateTable)
	}
	c.schemas[s.Table] = s
	return c.persistLocked()
}

// Lookup returns the schema for table, if declared.
func (c *Catalog) Lookup(table string) (Schema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.schemas[table]
	return s, ok
}

// All returns every declared schema, in no particular order.
func (c *Catalog) All() []Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Schema, 0, len(c.schemas))
	for _, s := range c.schemas {
		out = append(out, s)
	}
	return out
}

func (c *Catalog) persistLocked() error {
	list := make([]Schema, 0, len(c.schemas))
	for _, s := range c.schemas {
		list = append(list, s)
	}
	blob, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("catalog: encode: %w", err)
	}
	root, err := writeBlob(c.st, blob)
	if err != nil {
		return fmt.Errorf("catalog: persist: %w", err)
	}
	if err := c.st.SetCatalogRoot(root); err != nil {
		return fmt.Errorf("catalog: set root: %w", err)
	}
	return c.st.Flush()
}

// blobBodyPerPage is the usable payload per page: 4 bytes reserved at the end
// for the next page id (0 = end of chain), 4 bytes at the start of the
// first page for the total blob length.
const nextPtrSize = 4
const blobBodyPerPage = page.Size - nextPtrSize

func writeBlob(st *store.Store, blob []byte) (uint32, error) {
	lenPrefix := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenPrefix, uint32(len(blob)))
	full := append(lenPrefix, blob...)

	var firstID, prevID uint32
	offset := 0
	for {
		id, err := st.AllocatePage()
		if err != nil {
			return 0, err
		}
		if offset == 0 {
			firstID = id
		} else {
			prevPage, err := st.ReadPage(prevID)
			if err != nil {
				return 0, err
			}
			binary.LittleEndian.PutUint32(prevPage.Data[blobBodyPerPage:], id)
			if err := st.WritePage(prevPage); err != nil {
				return 0, err
			}
		}

		p, err := st.ReadPage(id)
		if err != nil {
			return 0, err
		}
		end := offset + blobBodyPerPage
		if end > len(full) {
			end = len(full)
		}
		n := copy(p.Data[:blobBodyPerPage], full[offset:end])
		binary.LittleEndian.PutUint32(p.Data[blobBodyPerPage:], 0)
		if err := st.WritePage(p); err != nil {
			return 0, err
		}
		offset += n
		prevID = id
		if offset >= len(full) {
			break
		}
	}
	return firstID, nil
}

func readBlob(st *store.Store, firstID uint32) ([]byte, error) {
	id := firstID
	var out []byte
	total := -1
	for id != 0 {
		p, err := st.ReadPage(id)
		if err != nil {
			return nil, err
		}
		body := p.Data[:blobBodyPerPage]
		if total < 0 {
			total = int(binary.LittleEndian.Uint32(body[:4]))
			body = body[4:]
		}
		out = append(out, body...)
		id = binary.LittleEndian.Uint32(p.Data[blobBodyPerPage:])
	}
	if total < 0 || len(out) < total {
		return nil, fmt.Errorf("catalog: truncated blob: %w", enginerr.ErrCatalogCorrupted)
	}
	return out[:total], nil
}
