/*
Package txn implements the transaction manager (§4.6): begin/commit/
rollback lifecycle, an in-memory pending list per transaction used to
synthesize undo records, and the crash-recovery driver that runs at
startup.

Grounded on storage_engine/transaction_manager/{main,structs,
rollback_helpers}.go's TxnManager/Transaction/InsertedRows-UpdatedRows
shape; generalized from the teacher's two ad hoc slices (InsertedRows,
UpdatedRows keyed to a heap-file row pointer) to a single ordered
pending list of WAL records, since this build's undo image is the WAL
record itself rather than a row pointer into a separate heap file.
*/
package txn

import (
	"fmt"
	"sync"

	"mde/internal/enginerr"
	"mde/internal/metrics"
	"mde/internal/value"
	"mde/internal/wal"
)

// State is a transaction's lifecycle state, per §3.
type State uint8

const (
	StateActive State = iota
	StateCommitted
	StateRolledBack
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "Active"
	case StateCommitted:
		return "Committed"
	case StateRolledBack:
		return "RolledBack"
	case StateAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// UndoApplier re-installs or removes a row in the in-memory tree during
// rollback and recovery. It is supplied by the table façade at
// construction, per §4.6.
type UndoApplier func(rec wal.Record) error

// Manager owns transaction id allocation and the set of active
// transactions.
type Manager struct {
	log     *wal.Log
	undo    UndoApplier
	metrics *metrics.Store

	mu     sync.Mutex
	nextID int64
	active map[int64]*Transaction
}

// NewManager constructs a Manager writing to log and applying undo
// records through undo. startID is the first id this manager will hand
// out from Begin; callers that ran Recover pass its returned nextID so
// recovered transaction ids are never reissued.
func NewManager(log *wal.Log, undo UndoApplier, m *metrics.Store, startID int64) *Manager {
	if m == nil {
		m = metrics.New(nil)
	}
	if startID < 1 {
		startID = 1
	}
	return &Manager{
		log:     log,
		undo:    undo,
		metrics: m,
		nextID:  startID,
		active:  make(map[int64]*Transaction),
	}
}

// Transaction is a single unit of work, per §3.
type Transaction struct {
	id      int64
	mgr     *Manager
	mu      sync.Mutex
	state   State
	pending []wal.Record
}

func (t *Transaction) ID() int64  { return t.id }
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Begin allocates a transaction id, appends a Begin record, and
// registers the transaction as active.
func (m *Manager) Begin() (*Transaction, error) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.mu.Unlock()

	if _, err := m.log.Append(wal.Record{TxnID: id, Op: wal.OpBegin}); err != nil {
		return nil, fmt.Errorf("txn: begin: %w", err)
	}

	t := &Transaction{id: id, mgr: m, state: StateActive}
	m.mu.Lock()
	m.active[id] = t
	m.mu.Unlock()
	return t, nil
}

// Get returns the active transaction with the given id, if any.
func (m *Manager) Get(id int64) (*Transaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.active[id]
	return t, ok
}

func (m *Manager) deregister(id int64) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

func (t *Transaction) requireActive() error {
	if t.state != StateActive {
		return fmt.Errorf("txn %d: not active (state=%s): %w", t.id, t.state, enginerr.ErrInvalidTxnState)
	}
	return nil
}

func (t *Transaction) logAndPend(rec wal.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.requireActive(); err != nil {
		return err
	}
	rec.TxnID = t.id
	appended, err := t.mgr.log.Append(rec)
	if err != nil {
		return fmt.Errorf("txn %d: log: %w", t.id, err)
	}
	t.pending = append(t.pending, appended)
	return nil
}

// LogInsert records a new key/value pair, forbidden outside Active.
func (t *Transaction) LogInsert(table string, key value.Value, newValue []byte) error {
	return t.logAndPend(wal.Record{Op: wal.OpInsert, Table: table, Key: &key, NewValue: newValue})
}

// LogUpdate records a key's old and new values, forbidden outside Active.
func (t *Transaction) LogUpdate(table string, key value.Value, oldValue, newValue []byte) error {
	return t.logAndPend(wal.Record{Op: wal.OpUpdate, Table: table, Key: &key, OldValue: oldValue, NewValue: newValue})
}

// LogDelete records a key's prior value, forbidden outside Active.
func (t *Transaction) LogDelete(table string, key value.Value, oldValue []byte) error {
	return t.logAndPend(wal.Record{Op: wal.OpDelete, Table: table, Key: &key, OldValue: oldValue})
}

// Commit appends a Commit record, fsyncs the WAL (the durability
// barrier per §4.5/§4.6), and marks the transaction Committed.
func (t *Transaction) Commit() error {
	t.mu.Lock()
	if err := t.requireActive(); err != nil {
		t.mu.Unlock()
		return err
	}
	t.mu.Unlock()

	if _, err := t.mgr.log.Append(wal.Record{TxnID: t.id, Op: wal.OpCommit}); err != nil {
		return fmt.Errorf("txn %d: commit: %w", t.id, err)
	}
	if err := t.mgr.log.Flush(); err != nil {
		return fmt.Errorf("txn %d: commit fsync: %w", t.id, err)
	}

	t.mu.Lock()
	t.state = StateCommitted
	t.mu.Unlock()
	t.mgr.deregister(t.id)
	metrics.Inc(t.mgr.metrics.TxnCommits)
	return nil
}

// Rollback undoes every pending record in reverse order via the
// manager's UndoApplier, appends a Rollback record, fsyncs, and marks
// the transaction RolledBack. Forbidden outside Active.
func (t *Transaction) Rollback() error {
	t.mu.Lock()
	if err := t.requireActive(); err != nil {
		t.mu.Unlock()
		return err
	}
	pending := t.pending
	t.mu.Unlock()

	for i := len(pending) - 1; i >= 0; i-- {
		undoRec, ok := undoFor(pending[i])
		if !ok {
			continue
		}
		if t.mgr.undo != nil {
			if err := t.mgr.undo(undoRec); err != nil {
				return fmt.Errorf("txn %d: undo record seq %d: %w", t.id, pending[i].Sequence, err)
			}
		}
	}

	if _, err := t.mgr.log.Append(wal.Record{TxnID: t.id, Op: wal.OpRollback}); err != nil {
		return fmt.Errorf("txn %d: rollback: %w", t.id, err)
	}
	if err := t.mgr.log.Flush(); err != nil {
		return fmt.Errorf("txn %d: rollback fsync: %w", t.id, err)
	}

	t.mu.Lock()
	t.state = StateRolledBack
	t.mu.Unlock()
	t.mgr.deregister(t.id)
	metrics.Inc(t.mgr.metrics.TxnRollbacks)
	return nil
}

// Drop performs a best-effort rollback if the transaction is still
// Active; scoped-release semantics per §4.6, errors are swallowed.
func (t *Transaction) Drop() {
	t.mu.Lock()
	active := t.state == StateActive
	t.mu.Unlock()
	if active {
		_ = t.Rollback()
	}
}

// undoFor synthesizes the inverse of a pending record, per §4.6's
// undo-record table: Insert -> Delete, Update -> swap old/new,
// Delete -> Insert. Begin/Commit/Rollback/Checkpoint carry no undo.
func undoFor(rec wal.Record) (wal.Record, bool) {
	switch rec.Op {
	case wal.OpInsert:
		return wal.Record{TxnID: rec.TxnID, Op: wal.OpDelete, Table: rec.Table, Key: rec.Key, OldValue: rec.NewValue}, true
	case wal.OpUpdate:
		return wal.Record{TxnID: rec.TxnID, Op: wal.OpUpdate, Table: rec.Table, Key: rec.Key, OldValue: rec.NewValue, NewValue: rec.OldValue}, true
	case wal.OpDelete:
		return wal.Record{TxnID: rec.TxnID, Op: wal.OpInsert, Table: rec.Table, Key: rec.Key, NewValue: rec.OldValue}, true
	default:
		return wal.Record{}, false
	}
}
