package txn

import (
	"fmt"
	"sort"

	"mde/internal/wal"
)

// Recover replays the WAL against apply, per §4.6's recover_from_wal:
// partition records by transaction id into Committed, RolledBack, or
// neither (a transaction that never reached a terminal record because
// the process crashed mid-transaction); replay committed transactions'
// effects forward in log order, undo only the neither group's pending
// records in reverse, and leave RolledBack transactions untouched since
// they already undid themselves durably before the crash. It returns
// the id one past the highest transaction id observed, so the
// manager's next Begin doesn't collide with a recovered id.
func Recover(log *wal.Log, apply UndoApplier) (nextID int64, err error) {
	records, err := log.ReadAll()
	if err != nil {
		return 1, fmt.Errorf("txn: recover: read wal: %w", err)
	}

	byTxn := make(map[int64][]wal.Record)
	terminal := make(map[int64]wal.OpKind)
	var maxTxn int64

	for _, rec := range records {
		if rec.TxnID > maxTxn {
			maxTxn = rec.TxnID
		}
		switch rec.Op {
		case wal.OpCommit, wal.OpRollback:
			terminal[rec.TxnID] = rec.Op
		case wal.OpInsert, wal.OpUpdate, wal.OpDelete:
			byTxn[rec.TxnID] = append(byTxn[rec.TxnID], rec)
		}
	}

	// Replay committed transactions' mutations directly from records, in
	// their original log order, rather than grouping by transaction id
	// and iterating that map: two committed transactions touching the
	// same key must land in commit order, and Go map iteration order is
	// randomized, so replaying out of a map risks silently reordering
	// them.
	for _, rec := range records {
		switch rec.Op {
		case wal.OpInsert, wal.OpUpdate, wal.OpDelete:
			if terminal[rec.TxnID] != wal.OpCommit {
				continue
			}
			if err := apply(rec); err != nil {
				return 1, fmt.Errorf("txn: recover: replay txn %d seq %d: %w", rec.TxnID, rec.Sequence, err)
			}
		}
	}

	// Undo transactions that crashed mid-transaction (no terminal record
	// at all). A transaction with a durable OpRollback terminal already
	// undid itself before the crash and needs no correction here.
	// Visited in ascending txn id order for determinism, though distinct
	// crashed transactions ordinarily touch disjoint keys.
	unterminated := make([]int64, 0, len(byTxn))
	for txnID := range byTxn {
		if _, hasTerminal := terminal[txnID]; !hasTerminal {
			unterminated = append(unterminated, txnID)
		}
	}
	sort.Slice(unterminated, func(i, j int) bool { return unterminated[i] < unterminated[j] })

	for _, txnID := range unterminated {
		pending := byTxn[txnID]
		for i := len(pending) - 1; i >= 0; i-- {
			undoRec, ok := undoFor(pending[i])
			if !ok {
				continue
			}
			if err := apply(undoRec); err != nil {
				return 1, fmt.Errorf("txn: recover: undo txn %d seq %d: %w", txnID, pending[i].Sequence, err)
			}
		}
	}

	return maxTxn + 1, nil
}
