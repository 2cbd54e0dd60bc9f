/*
Package engine is the table façade (C10): the external collaborator the
core (C1-C9) is described against. It ties the paged store, B+ tree,
WAL, transaction manager, catalog, and hot-row cache together into
CreateTable/Insert/Update/Delete/SelectByKey/Iterate/Range, with both
explicit (BeginTxn/Commit/Rollback) and implicit single-statement
transactions.

Grounded on query_executor/auto_commit.go and auto_transaction.go's
split between a VM-driven explicit transaction and an auto-begin/
auto-commit wrapper for bare statements; generalized here since this
façade has no SQL VM, only direct method calls.
*/
package engine

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"mde/internal/btree"
	"mde/internal/catalog"
	"mde/internal/enginerr"
	"mde/internal/hotcache"
	"mde/internal/metrics"
	"mde/internal/page"
	"mde/internal/store"
	"mde/internal/txn"
	"mde/internal/value"
	"mde/internal/wal"
)

const defaultOrder = btree.DefaultOrder

// Options configures Open.
type Options struct {
	Path            string
	MemoryMapped    bool
	CacheCapacity   int
	HotCacheMaxCost int64
	Metrics         *metrics.Store
	Log             *logrus.Logger
}

// Engine is the open embedded database: one paged store, one WAL, one
// transaction manager, one catalog, and one B+ tree per declared table.
type Engine struct {
	st      *store.Store
	log     *wal.Log
	txns    *txn.Manager
	cat     *catalog.Catalog
	hot     *hotcache.Cache
	metrics *metrics.Store
	logger  *logrus.Logger

	treesMu sync.RWMutex
	trees   map[string]*btree.Tree
}

// Open opens or creates the database at opts.Path, replaying its WAL to
// restore in-memory tree state before returning.
func Open(opts Options) (*Engine, error) {
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	st, err := store.Open(store.Options{
		Path:          opts.Path,
		CacheCapacity: opts.CacheCapacity,
		MemoryMapped:  opts.MemoryMapped,
		Metrics:       opts.Metrics,
		Log:           opts.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: open store: %w", err)
	}

	log, err := wal.Open(wal.Path(opts.Path), wal.Options{Metrics: opts.Metrics, Log: opts.Log})
	if err != nil {
		return nil, fmt.Errorf("engine: open wal: %w", err)
	}

	cat, err := catalog.Open(st)
	if err != nil {
		return nil, fmt.Errorf("engine: open catalog: %w", err)
	}

	hotCfg := hotcache.DefaultConfig
	if opts.HotCacheMaxCost > 0 {
		hotCfg.MaxCost = opts.HotCacheMaxCost
	}
	hot, err := hotcache.New(hotCfg)
	if err != nil {
		return nil, fmt.Errorf("engine: open hot cache: %w", err)
	}

	e := &Engine{
		st:      st,
		log:     log,
		cat:     cat,
		hot:     hot,
		metrics: opts.Metrics,
		logger:  opts.Log,
		trees:   make(map[string]*btree.Tree),
	}

	for _, s := range cat.All() {
		e.trees[s.Table] = btree.New(defaultOrder, s.KeyType)
	}

	nextID, err := txn.Recover(log, e.applyUndo)
	if err != nil {
		return nil, fmt.Errorf("engine: recover: %w", err)
	}
	e.txns = txn.NewManager(log, e.applyUndo, opts.Metrics, nextID)

	e.logger.WithFields(logrus.Fields{
		"path":      opts.Path,
		"page_size": humanize.Bytes(page.Size),
		"tables":    len(e.trees),
	}).Info("engine: opened")

	return e, nil
}

// Close flushes and releases the store, WAL, and hot cache.
func (e *Engine) Close() error {
	e.hot.Close()
	if err := e.log.Close(); err != nil {
		e.logger.WithError(err).Warn("engine: wal close failed")
	}
	return e.st.Close()
}

// CreateTable declares a new table's schema and creates its backing
// tree. Redeclaring a table name is an error.
func (e *Engine) CreateTable(s catalog.Schema) error {
	if err := e.cat.Declare(s); err != nil {
		return err
	}
	e.treesMu.Lock()
	e.trees[s.Table] = btree.New(defaultOrder, s.KeyType)
	e.treesMu.Unlock()
	return nil
}

func (e *Engine) tree(table string) (*btree.Tree, error) {
	e.treesMu.RLock()
	defer e.treesMu.RUnlock()
	t, ok := e.trees[table]
	if !ok {
		return nil, fmt.Errorf("engine: table %q: %w", table, enginerr.ErrUnknownTable)
	}
	return t, nil
}

// applyUndo installs (or removes) a row in the in-memory tree, used both
// during recovery and during an active transaction's Rollback. It is
// the UndoApplier the transaction manager was constructed with.
func (e *Engine) applyUndo(rec wal.Record) error {
	t, err := e.tree(rec.Table)
	if err != nil {
		return err
	}
	if rec.Key == nil {
		return nil
	}
	switch rec.Op {
	case wal.OpInsert, wal.OpUpdate:
		t.Insert(*rec.Key, rec.NewValue)
	case wal.OpDelete:
		t.Delete(*rec.Key)
	}
	e.hot.Invalidate(rec.Table, string(value.EncodeKey(*rec.Key)))
	e.hot.Wait()
	return nil
}
