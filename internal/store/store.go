/*
Package store implements the paged file store (§4.2/§4.3): fixed-size
4 KiB pages backed by a single data file, fronted by a bounded LRU
cache of either individual pages or whole 8-page extents.

Grounded on storage_engine/disk_manager for the on-disk layout and
storage_engine/bufferpool for the cache-in-front-of-disk shape; the
extent-cache mode and the mmap backing are additions this build makes
to exercise golang.org/x/sys/unix the way 7thCode-BPTree does.
*/
package store

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"mde/internal/cache"
	"mde/internal/extent"
	"mde/internal/metrics"
	"mde/internal/page"
)

// Options configures a Store. Zero values are replaced with defaults in
// Open except where noted.
type Options struct {
	// Path is the data file to open or create.
	Path string

	// CacheCapacity bounds the number of pages (or extents, if
	// ExtentCache is set) held in memory. Defaults to 100.
	CacheCapacity int

	// MemoryMapped selects the mmap backing instead of positional
	// ReadAt/WriteAt.
	MemoryMapped bool

	// ExtentCache caches whole 8-page extents instead of individual
	// pages, amortizing I/O across an extent at the cost of coarser
	// eviction granularity. Defaults to true.
	ExtentCache bool

	// ExtentCacheSet distinguishes "false because unset" from "false
	// because the caller explicitly wants page-level caching", since
	// Options is passed by value and bool zero values are ambiguous.
	ExtentCacheSet bool

	// Metrics, if non-nil, receives cache/store instrumentation. A nil
	// registry (the default via metrics.New(nil)) disables collection.
	Metrics *metrics.Store

	Log *logrus.Logger
}

func (o *Options) setDefaults() {
	if o.CacheCapacity <= 0 {
		o.CacheCapacity = 100
	}
	if !o.ExtentCacheSet {
		o.ExtentCache = true
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New(nil)
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
}

// Store is the paged file store: page-addressed read/write over a
// single backing file, with LRU-cached hot pages/extents.
type Store struct {
	opts    Options
	backing backing

	// mu is §5's paged-store reader/writer lock: shared for reads,
	// exclusive for writes, allocation, and flush.
	mu     sync.RWMutex
	header header

	pageCache   *cache.Cache[uint32, *page.Page]
	extentCache *cache.Cache[uint32, *extent.Extent]
}

// Open opens the file at opts.Path, creating and formatting it with a
// fresh header page if it doesn't already contain one.
func Open(opts Options) (*Store, error) {
	opts.setDefaults()

	// The mmap backing grows a new file to its initial mapping size as it
	// opens it, so whether the file still needs formatting is decided from
	// its size before the backing is opened.
	fresh := true
	if info, err := os.Stat(opts.Path); err == nil && info.Size() >= page.Size {
		fresh = false
	}

	var b backing
	var err error
	if opts.MemoryMapped {
		b, err = openMmapBacking(opts.Path)
	} else {
		b, err = openFileBacking(opts.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("store: open backing: %w", err)
	}

	s := &Store{opts: opts, backing: b}

	if fresh {
		if err := b.grow(page.Size); err != nil {
			return nil, fmt.Errorf("store: format: %w", err)
		}
		s.header = header{Magic: Magic, Version: Version, NextPageID: 1}
		hp := page.New(page.HeaderPageID)
		s.header.encodeInto(hp)
		if _, err := b.writeAt(0, hp.Data[:]); err != nil {
			return nil, fmt.Errorf("store: write header: %w", err)
		}
		if err := b.sync(); err != nil {
			return nil, fmt.Errorf("store: sync header: %w", err)
		}
	} else {
		hp := page.New(page.HeaderPageID)
		if _, err := b.readAt(0, hp.Data[:]); err != nil {
			return nil, fmt.Errorf("store: read header: %w", err)
		}
		h, err := decodeHeader(hp)
		if err != nil {
			return nil, err
		}
		s.header = h
	}

	if opts.ExtentCache {
		s.extentCache = cache.New[uint32, *extent.Extent](opts.CacheCapacity, (*extent.Extent).Dirty, s.writebackExtent)
	} else {
		s.pageCache = cache.New[uint32, *page.Page](opts.CacheCapacity, isPageDirty, s.writebackPage)
	}

	return s, nil
}

func isPageDirty(p *page.Page) bool {
	p.Lock()
	defer p.Unlock()
	return p.Dirty
}

// ReadPage returns the page with the given id, loading it from the
// backing file on a cache miss. Reads past the allocated range return a
// zero-filled page rather than an error, matching a freshly allocated
// but never-written page.
func (s *Store) ReadPage(id uint32) (*page.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.extentCache != nil {
		e, err := s.loadExtent(extent.Of(id))
		if err != nil {
			return nil, err
		}
		return e.Pages[extent.OffsetIn(id)], nil
	}

	if p, ok := s.pageCache.Get(id); ok {
		metrics.Inc(s.opts.Metrics.CacheHits)
		return p, nil
	}
	metrics.Inc(s.opts.Metrics.CacheMisses)
	p, err := s.loadPage(id)
	if err != nil {
		return nil, err
	}
	if evicted, err := s.pageCache.Put(id, p); err != nil {
		return nil, fmt.Errorf("store: writeback on evict: %w", err)
	} else if evicted {
		metrics.Inc(s.opts.Metrics.CacheEvictions)
	}
	return p, nil
}

// WritePage marks p dirty and writes it through to the backing file
// immediately, but does not fsync — durability is only guaranteed after
// Flush. This mirrors the WAL's fsync-before-commit-report barrier:
// the OS buffer holds the bytes, Flush is what makes them durable.
func (s *Store) WritePage(p *page.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.Lock()
	p.Dirty = true
	data := p.Data
	id := p.ID
	p.Unlock()

	if _, err := s.backing.writeAt(int64(id)*page.Size, data[:]); err != nil {
		return fmt.Errorf("store: write page %d: %w", id, err)
	}

	if s.extentCache != nil {
		if _, err := s.loadExtent(extent.Of(id)); err != nil {
			return err
		}
	} else {
		if evicted, err := s.pageCache.Put(id, p); err != nil {
			return fmt.Errorf("store: writeback on evict: %w", err)
		} else if evicted {
			metrics.Inc(s.opts.Metrics.CacheEvictions)
		}
	}
	metrics.Inc(s.opts.Metrics.PageFlushes)
	return nil
}

// AllocatePage reserves the next page id, extends the backing file to
// cover it, and returns the id of a fresh, all-zero page. The caller is
// responsible for writing content via WritePage.
func (s *Store) AllocatePage() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.header.NextPageID
	s.header.NextPageID++

	if err := s.backing.grow(int64(id+1) * page.Size); err != nil {
		return 0, fmt.Errorf("store: grow for page %d: %w", id, err)
	}
	if err := s.persistHeaderLocked(); err != nil {
		return 0, err
	}
	return id, nil
}

// ReadExtent returns the extent with extent id id (pages id*8 through
// id*8+7), only meaningful when the store was opened with ExtentCache.
func (s *Store) ReadExtent(id uint32) (*extent.Extent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.extentCache == nil {
		return nil, fmt.Errorf("store: ReadExtent called without extent caching enabled")
	}
	return s.loadExtent(id)
}

// WriteExtent writes each dirty page of e individually at its natural
// offset, clearing its dirty flag on success, and refreshes the cache
// entry. Clean pages are left untouched.
func (s *Store) WriteExtent(e *extent.Extent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range e.Pages {
		p.Lock()
		dirty := p.Dirty
		data := p.Data
		id := p.ID
		p.Unlock()
		if !dirty {
			continue
		}
		if _, err := s.backing.writeAt(int64(id)*page.Size, data[:]); err != nil {
			return fmt.Errorf("store: write page %d: %w", id, err)
		}
		p.Lock()
		p.Dirty = false
		p.Unlock()
		metrics.Inc(s.opts.Metrics.PageFlushes)
	}
	if evicted, err := s.extentCache.Put(e.ID, e); err != nil {
		return fmt.Errorf("store: writeback on evict: %w", err)
	} else if evicted {
		metrics.Inc(s.opts.Metrics.CacheEvictions)
	}
	return nil
}

// Flush fsyncs the backing file, making every prior WritePage/WriteExtent
// durable, and clears the dirty flag on cached pages.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persistHeaderLocked(); err != nil {
		return err
	}
	if err := s.backing.sync(); err != nil {
		return fmt.Errorf("store: sync: %w", err)
	}
	s.clearDirtyFlags()
	metrics.Inc(s.opts.Metrics.StoreSyncs)
	return nil
}

func (s *Store) clearDirtyFlags() {
	if s.extentCache != nil {
		for _, id := range s.extentCache.DirtyKeys() {
			if e, ok := s.extentCache.Peek(id); ok {
				for _, p := range e.Pages {
					p.Lock()
					p.Dirty = false
					p.Unlock()
				}
			}
		}
		return
	}
	for _, id := range s.pageCache.DirtyKeys() {
		if p, ok := s.pageCache.Peek(id); ok {
			p.Lock()
			p.Dirty = false
			p.Unlock()
		}
	}
}

// Close flushes and releases the backing file.
func (s *Store) Close() error {
	if err := s.Flush(); err != nil {
		s.opts.Log.WithError(err).Warn("store: flush during close failed")
	}
	return s.backing.close()
}

func (s *Store) persistHeaderLocked() error {
	hp := page.New(page.HeaderPageID)
	s.header.encodeInto(hp)
	if _, err := s.backing.writeAt(0, hp.Data[:]); err != nil {
		return fmt.Errorf("store: persist header: %w", err)
	}
	return nil
}

func (s *Store) loadPage(id uint32) (*page.Page, error) {
	p := page.New(id)
	n, err := s.backing.readAt(int64(id)*page.Size, p.Data[:])
	if err != nil && n == 0 {
		// Past EOF: treat as an unwritten, zero-filled page.
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read page %d: %w", id, err)
	}
	return p, nil
}

func (s *Store) loadExtent(id uint32) (*extent.Extent, error) {
	if e, ok := s.extentCache.Get(id); ok {
		metrics.Inc(s.opts.Metrics.CacheHits)
		return e, nil
	}
	metrics.Inc(s.opts.Metrics.CacheMisses)

	e := extent.New(id)
	base := id * extent.PagesPerExtent
	buf := make([]byte, extent.PagesPerExtent*page.Size)
	n, err := s.backing.readAt(int64(base)*page.Size, buf)
	if err != nil && n == 0 {
		// Unwritten extent, leave e zero-filled.
	} else if err != nil {
		return nil, fmt.Errorf("store: read extent %d: %w", id, err)
	} else {
		for i := range e.Pages {
			copy(e.Pages[i].Data[:], buf[i*page.Size:(i+1)*page.Size])
		}
	}

	if evicted, err := s.extentCache.Put(id, e); err != nil {
		return nil, fmt.Errorf("store: writeback on evict: %w", err)
	} else if evicted {
		metrics.Inc(s.opts.Metrics.CacheEvictions)
	}
	return e, nil
}

func (s *Store) writebackPage(id uint32, p *page.Page) error {
	p.Lock()
	data := p.Data
	dirty := p.Dirty
	p.Unlock()
	if !dirty {
		return nil
	}
	if _, err := s.backing.writeAt(int64(id)*page.Size, data[:]); err != nil {
		return fmt.Errorf("store: writeback page %d: %w", id, err)
	}
	return nil
}

func (s *Store) writebackExtent(id uint32, e *extent.Extent) error {
	if !e.Dirty() {
		return nil
	}
	buf := make([]byte, extent.PagesPerExtent*page.Size)
	for i, p := range e.Pages {
		p.Lock()
		copy(buf[i*page.Size:(i+1)*page.Size], p.Data[:])
		p.Unlock()
	}
	off := int64(id) * extent.PagesPerExtent * page.Size
	if _, err := s.backing.writeAt(off, buf); err != nil {
		return fmt.Errorf("store: writeback extent %d: %w", id, err)
	}
	return nil
}

// CatalogRoot returns the page id holding the persisted schema catalog,
// 0 if none has been declared yet.
func (s *Store) CatalogRoot() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.header.CatalogRoot
}

// SetCatalogRoot records the page id holding the persisted schema
// catalog. Callers must Flush afterward for the change to survive a
// crash.
func (s *Store) SetCatalogRoot(id uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.header.CatalogRoot = id
	return s.persistHeaderLocked()
}
