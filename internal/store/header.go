package store

import (
	"encoding/binary"
	"fmt"

	"mde/internal/enginerr"
	"mde/internal/page"
)

// Magic identifies an mde data file: ASCII "MDE" packed into the low
// three bytes, per §3.
const Magic uint32 = 0x004D4445

// Version is the on-disk format version this build writes and expects.
const Version uint32 = 1

// header is the layout of page 0. NextPageID is the monotonic
// allocator cursor; TableCount is reserved for catalog bookkeeping and
// CatalogRoot (an expansion beyond spec's original reserved field)
// points at the page holding the serialized table catalog, 0 if none
// has been declared yet.
type header struct {
	Magic       uint32
	Version     uint32
	NextPageID  uint32
	TableCount  uint32
	CatalogRoot uint32
}

const headerSize = 4 * 5

func (h header) encodeInto(p *page.Page) {
	p.Lock()
	defer p.Unlock()
	binary.LittleEndian.PutUint32(p.Data[0:4], h.Magic)
	binary.LittleEndian.PutUint32(p.Data[4:8], h.Version)
	binary.LittleEndian.PutUint32(p.Data[8:12], h.NextPageID)
	binary.LittleEndian.PutUint32(p.Data[12:16], h.TableCount)
	binary.LittleEndian.PutUint32(p.Data[16:20], h.CatalogRoot)
	p.MarkDirty()
}

func decodeHeader(p *page.Page) (header, error) {
	p.Lock()
	defer p.Unlock()
	var h header
	h.Magic = binary.LittleEndian.Uint32(p.Data[0:4])
	h.Version = binary.LittleEndian.Uint32(p.Data[4:8])
	h.NextPageID = binary.LittleEndian.Uint32(p.Data[8:12])
	h.TableCount = binary.LittleEndian.Uint32(p.Data[12:16])
	h.CatalogRoot = binary.LittleEndian.Uint32(p.Data[16:20])
	if h.Magic != Magic {
		return header{}, fmt.Errorf("store: bad magic %#x: %w", h.Magic, enginerr.ErrInvalidMagic)
	}
	if h.Version != Version {
		return header{}, fmt.Errorf("store: unsupported version %d: %w", h.Version, enginerr.ErrUnsupportedVersion)
	}
	return h, nil
}
