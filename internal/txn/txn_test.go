package txn_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mde/internal/txn"
	"mde/internal/value"
	"mde/internal/wal"
)

// fakeTable is a minimal in-memory row store standing in for a B+ tree,
// so undo application can be observed directly.
type fakeTable struct {
	rows map[string][]byte
}

func newFakeTable() *fakeTable { return &fakeTable{rows: make(map[string][]byte)} }

func (f *fakeTable) applyUndo(rec wal.Record) error {
	k := string(value.EncodeKey(*rec.Key))
	switch rec.Op {
	case wal.OpInsert, wal.OpUpdate:
		f.rows[k] = rec.NewValue
	case wal.OpDelete:
		delete(f.rows, k)
	}
	return nil
}

func openLog(t *testing.T) *wal.Log {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.wal")
	l, err := wal.Open(path, wal.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestBeginCommitLifecycle(t *testing.T) {
	log := openLog(t)
	tbl := newFakeTable()
	mgr := txn.NewManager(log, tbl.applyUndo, nil, 1)

	tx, err := mgr.Begin()
	require.NoError(t, err)
	require.Equal(t, txn.StateActive, tx.State())

	key := value.NewInt32(1)
	require.NoError(t, tx.LogInsert("widgets", key, []byte("row1")))
	require.NoError(t, tx.Commit())
	require.Equal(t, txn.StateCommitted, tx.State())

	_, ok := mgr.Get(tx.ID())
	require.False(t, ok, "committed transaction must be deregistered")
}

func TestCommitTwiceFails(t *testing.T) {
	log := openLog(t)
	mgr := txn.NewManager(log, nil, nil, 1)
	tx, err := mgr.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.Error(t, tx.Commit())
}

func TestRollbackUndoesPendingWritesInReverse(t *testing.T) {
	log := openLog(t)
	tbl := newFakeTable()
	mgr := txn.NewManager(log, tbl.applyUndo, nil, 1)

	tx, err := mgr.Begin()
	require.NoError(t, err)

	k1, k2 := value.NewInt32(1), value.NewInt32(2)
	require.NoError(t, tx.LogInsert("widgets", k1, []byte("a")))
	tbl.rows[string(value.EncodeKey(k1))] = []byte("a")
	require.NoError(t, tx.LogInsert("widgets", k2, []byte("b")))
	tbl.rows[string(value.EncodeKey(k2))] = []byte("b")

	require.NoError(t, tx.Rollback())
	require.Equal(t, txn.StateRolledBack, tx.State())

	require.Empty(t, tbl.rows, "rollback must undo every pending write")
}

func TestRollbackUndoesUpdateBySwappingOldNew(t *testing.T) {
	log := openLog(t)
	tbl := newFakeTable()
	mgr := txn.NewManager(log, tbl.applyUndo, nil, 1)
	key := value.NewInt32(1)
	tbl.rows[string(value.EncodeKey(key))] = []byte("original")

	tx, err := mgr.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.LogUpdate("widgets", key, []byte("original"), []byte("updated")))
	tbl.rows[string(value.EncodeKey(key))] = []byte("updated")

	require.NoError(t, tx.Rollback())
	require.Equal(t, []byte("original"), tbl.rows[string(value.EncodeKey(key))])
}

func TestDropRollsBackActiveTransactionOnly(t *testing.T) {
	log := openLog(t)
	tbl := newFakeTable()
	mgr := txn.NewManager(log, tbl.applyUndo, nil, 1)

	tx, err := mgr.Begin()
	require.NoError(t, err)
	key := value.NewInt32(5)
	require.NoError(t, tx.LogInsert("widgets", key, []byte("x")))
	tbl.rows[string(value.EncodeKey(key))] = []byte("x")

	tx.Drop()
	require.Equal(t, txn.StateRolledBack, tx.State())
	require.Empty(t, tbl.rows)

	// dropping an already-committed transaction must be a no-op
	tx2, err := mgr.Begin()
	require.NoError(t, err)
	require.NoError(t, tx2.Commit())
	tx2.Drop()
	require.Equal(t, txn.StateCommitted, tx2.State())
}

func TestOperationsOutsideActiveAreRejected(t *testing.T) {
	log := openLog(t)
	mgr := txn.NewManager(log, nil, nil, 1)
	tx, err := mgr.Begin()
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	err = tx.LogInsert("widgets", value.NewInt32(1), []byte("x"))
	require.Error(t, err)
}

func TestRecoverReplaysCommittedAndUndoesUnterminated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recover.wal")
	log, err := wal.Open(path, wal.Options{})
	require.NoError(t, err)

	tbl := newFakeTable()
	mgr := txn.NewManager(log, tbl.applyUndo, nil, 1)

	// txn 1: committed, should replay forward
	tx1, err := mgr.Begin()
	require.NoError(t, err)
	k1 := value.NewInt32(1)
	require.NoError(t, tx1.LogInsert("widgets", k1, []byte("committed-row")))
	require.NoError(t, tx1.Commit())

	// txn 2: begins and writes but never reaches a terminal record,
	// simulating a crash mid-transaction
	tx2, err := mgr.Begin()
	require.NoError(t, err)
	k2 := value.NewInt32(2)
	require.NoError(t, tx2.LogInsert("widgets", k2, []byte("crashed-row")))

	require.NoError(t, log.Close())

	// reopen fresh, as a restart would
	log2, err := wal.Open(path, wal.Options{})
	require.NoError(t, err)
	defer log2.Close()

	tbl2 := newFakeTable()
	nextID, err := txn.Recover(log2, tbl2.applyUndo)
	require.NoError(t, err)
	require.Equal(t, int64(3), nextID)

	require.Equal(t, []byte("committed-row"), tbl2.rows[string(value.EncodeKey(k1))])
	_, present := tbl2.rows[string(value.EncodeKey(k2))]
	require.False(t, present, "an uncommitted transaction's writes must be undone on recovery")
}

func TestRecoverDoesNotReplayRolledBackTransaction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recover_rb.wal")
	log, err := wal.Open(path, wal.Options{})
	require.NoError(t, err)

	tbl := newFakeTable()
	mgr := txn.NewManager(log, tbl.applyUndo, nil, 1)
	tx, err := mgr.Begin()
	require.NoError(t, err)
	k := value.NewInt32(9)
	require.NoError(t, tx.LogInsert("widgets", k, []byte("row")))
	require.NoError(t, tx.Rollback())
	require.NoError(t, log.Close())

	log2, err := wal.Open(path, wal.Options{})
	require.NoError(t, err)
	defer log2.Close()

	tbl2 := newFakeTable()
	_, err = txn.Recover(log2, tbl2.applyUndo)
	require.NoError(t, err)
	require.Empty(t, tbl2.rows)
}

func TestRecoverSkipsAlreadyRolledBackTransactions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recover_mixed.wal")
	log, err := wal.Open(path, wal.Options{})
	require.NoError(t, err)

	tbl := newFakeTable()
	mgr := txn.NewManager(log, tbl.applyUndo, nil, 1)
	key := value.NewInt32(5)

	// txn1: committed, inserts 5 -> "Y"
	tx1, err := mgr.Begin()
	require.NoError(t, err)
	require.NoError(t, tx1.LogInsert("widgets", key, []byte("Y")))
	require.NoError(t, tx1.Commit())
	tbl.rows[string(value.EncodeKey(key))] = []byte("Y")

	// txn2: rolled back, would have updated 5 -> "Z"; already undone
	// durably by its own Rollback before the (simulated) crash
	tx2, err := mgr.Begin()
	require.NoError(t, err)
	require.NoError(t, tx2.LogUpdate("widgets", key, []byte("Y"), []byte("Z")))
	require.NoError(t, tx2.Rollback())

	// txn3: committed later, updates 5 -> "W"
	tx3, err := mgr.Begin()
	require.NoError(t, err)
	require.NoError(t, tx3.LogUpdate("widgets", key, []byte("Y"), []byte("W")))
	require.NoError(t, tx3.Commit())

	require.NoError(t, log.Close())

	log2, err := wal.Open(path, wal.Options{})
	require.NoError(t, err)
	defer log2.Close()

	tbl2 := newFakeTable()
	_, err = txn.Recover(log2, tbl2.applyUndo)
	require.NoError(t, err)

	require.Equal(t, []byte("W"), tbl2.rows[string(value.EncodeKey(key))],
		"an already-rolled-back transaction must not be re-undone during recovery")
}

func TestManagerSeedsNextIDFromStartID(t *testing.T) {
	log := openLog(t)
	mgr := txn.NewManager(log, nil, nil, 50)
	tx, err := mgr.Begin()
	require.NoError(t, err)
	require.Equal(t, int64(50), tx.ID())
}
