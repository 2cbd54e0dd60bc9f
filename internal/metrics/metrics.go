/*
Package metrics wires the storage engine's counters and gauges into
Prometheus, grounded in gazette-core's use of
github.com/prometheus/client_golang. Every constructor is nil-safe: a
nil *prometheus.Registry disables collection entirely so tests and the
façade's simpler call sites don't need to stand one up.
*/
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Store holds the counters shared by the cache, paged store, WAL, and
// transaction manager. In a zero Store every field is nil; call sites
// increment through Inc, which skips a nil counter, so they need no
// check of whether metrics are enabled.
type Store struct {
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter

	PageFlushes prometheus.Counter
	StoreSyncs  prometheus.Counter

	WALAppends prometheus.Counter
	WALSyncs   prometheus.Counter

	TxnCommits   prometheus.Counter
	TxnRollbacks prometheus.Counter
}

// New registers a fresh set of collectors against reg. If reg is nil,
// New returns a Store whose fields are all nil; incrementing a nil
// counter via the Inc helper below is a no-op.
func New(reg *prometheus.Registry) *Store {
	if reg == nil {
		return &Store{}
	}
	s := &Store{
		CacheHits:      newCounter(reg, "mde_cache_hits_total", "Page/extent cache hits."),
		CacheMisses:    newCounter(reg, "mde_cache_misses_total", "Page/extent cache misses."),
		CacheEvictions: newCounter(reg, "mde_cache_evictions_total", "Page/extent cache evictions."),
		PageFlushes:    newCounter(reg, "mde_page_flushes_total", "Dirty pages written through to disk."),
		StoreSyncs:     newCounter(reg, "mde_store_syncs_total", "fsync calls issued by the paged store."),
		WALAppends:     newCounter(reg, "mde_wal_appends_total", "WAL records appended."),
		WALSyncs:       newCounter(reg, "mde_wal_syncs_total", "WAL fsync calls."),
		TxnCommits:     newCounter(reg, "mde_txn_commits_total", "Transactions committed."),
		TxnRollbacks:   newCounter(reg, "mde_txn_rollbacks_total", "Transactions rolled back."),
	}
	return s
}

func newCounter(reg *prometheus.Registry, name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	reg.MustRegister(c)
	return c
}

// Inc increments c if it is non-nil, so call sites can write
// s.CacheHits.IncSafe() equivalents without branching on whether
// metrics are enabled. Named as a free function since prometheus.Counter
// is an interface and a nil interface value can't carry a method here.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}
