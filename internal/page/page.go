/*
Package page defines the fixed-size buffer the paged store and cache
move around. Pages hold the header and the catalog's page chain — the
B+ tree itself stays entirely in memory (§9),
so no tree node ever gets serialized into one of these.
*/
package page

import "sync"

// Size is the fixed page size in bytes: 4 KiB.
const Size = 4096

// HeaderPageID is the reserved id for the file header page. User pages
// are dense starting at 1.
const HeaderPageID uint32 = 0

// Page is a fixed-size slab of the backing file tagged with its id and
// a dirty flag. The mutex guards Data and Dirty against concurrent
// cache access; callers that already hold the cache's lock still take
// this lock briefly around reads/writes to individual pages.
type Page struct {
	ID    uint32
	Data  [Size]byte
	Dirty bool

	mu sync.Mutex
}

// New returns a zero-filled page with the given id.
func New(id uint32) *Page {
	return &Page{ID: id}
}

func (p *Page) Lock()   { p.mu.Lock() }
func (p *Page) Unlock() { p.mu.Unlock() }

// MarkDirty flags the page dirty. Callers must hold Lock.
func (p *Page) MarkDirty() { p.Dirty = true }

// Clone returns a deep copy of the page's bytes, used so callers can
// hand out page contents without exposing the cache's own backing array.
func (p *Page) Clone() *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := &Page{ID: p.ID, Dirty: p.Dirty}
	out.Data = p.Data
	return out
}
