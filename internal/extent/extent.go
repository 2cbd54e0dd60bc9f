// Package extent groups pages into fixed-size, addressable units so the
// cache and store can amortize I/O across several pages at a time.
package extent

import "mde/internal/page"

// PagesPerExtent is the fixed extent size: 8 consecutive pages.
const PagesPerExtent = 8

// Extent is a group of PagesPerExtent consecutive pages, dirty iff any
// constituent page is dirty.
type Extent struct {
	ID    uint32
	Pages [PagesPerExtent]*page.Page
}

// New builds an extent whose pages are freshly allocated and zero-filled,
// with page ids id*8..id*8+7.
func New(id uint32) *Extent {
	e := &Extent{ID: id}
	for i := range e.Pages {
		e.Pages[i] = page.New(id*PagesPerExtent + uint32(i))
	}
	return e
}

// Of returns the id of the extent containing page p.
func Of(p uint32) uint32 { return p / PagesPerExtent }

// OffsetIn returns p's offset within its extent, in [0, PagesPerExtent).
func OffsetIn(p uint32) uint32 { return p % PagesPerExtent }

// Dirty reports whether any page in the extent is dirty.
func (e *Extent) Dirty() bool {
	for _, p := range e.Pages {
		p.Lock()
		d := p.Dirty
		p.Unlock()
		if d {
			return true
		}
	}
	return false
}
