package engine

import (
	"fmt"

	"mde/internal/enginerr"
	"mde/internal/txn"
	"mde/internal/value"
)

// Txn is a caller-visible handle for an explicit, multi-statement
// transaction.
type Txn struct {
	e  *Engine
	tx *txn.Transaction
}

// BeginTxn starts an explicit transaction. The caller must Commit or
// Rollback it. Txn has no release hook: a handle dropped while still open
// leaves its transaction active and its writes in the tree until
// recovery on the next Open undoes them.
func (e *Engine) BeginTxn() (*Txn, error) {
	t, err := e.txns.Begin()
	if err != nil {
		return nil, err
	}
	return &Txn{e: e, tx: t}, nil
}

// Commit finalizes the transaction.
func (t *Txn) Commit() error { return t.tx.Commit() }

// Rollback undoes the transaction's writes.
func (t *Txn) Rollback() error { return t.tx.Rollback() }

// Insert writes key/row under table within an explicit transaction.
// Overwrites any existing value for key, per the tree's upsert
// semantics — callers wanting strict insert-only semantics should
// SelectByKey first.
func (t *Txn) Insert(table string, key value.Value, row []byte) error {
	return t.e.insert(t.tx, table, key, row)
}

// Update writes a new value for an existing key within an explicit
// transaction.
func (t *Txn) Update(table string, key value.Value, row []byte) error {
	return t.e.update(t.tx, table, key, row)
}

// Delete removes key within an explicit transaction.
func (t *Txn) Delete(table string, key value.Value) error {
	return t.e.delete(t.tx, table, key)
}

// Insert performs a single-statement insert under an implicit
// transaction: begin, write, commit, matching query_executor's
// autoTransactionBegin/autoTransactionCommit wrapper for bare
// statements issued without an explicit BEGIN/COMMIT.
func (e *Engine) Insert(table string, key value.Value, row []byte) error {
	return e.autoCommit(func(tx *txn.Transaction) error { return e.insert(tx, table, key, row) })
}

// Update performs a single-statement update under an implicit
// transaction.
func (e *Engine) Update(table string, key value.Value, row []byte) error {
	return e.autoCommit(func(tx *txn.Transaction) error { return e.update(tx, table, key, row) })
}

// Delete performs a single-statement delete under an implicit
// transaction.
func (e *Engine) Delete(table string, key value.Value) error {
	return e.autoCommit(func(tx *txn.Transaction) error { return e.delete(tx, table, key) })
}

func (e *Engine) autoCommit(fn func(tx *txn.Transaction) error) error {
	tx, err := e.txns.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (e *Engine) insert(tx *txn.Transaction, table string, key value.Value, row []byte) error {
	t, err := e.tree(table)
	if err != nil {
		return err
	}
	if err := tx.LogInsert(table, key, row); err != nil {
		return err
	}
	t.Insert(key, row)
	e.hot.Set(table, string(value.EncodeKey(key)), row)
	return nil
}

func (e *Engine) update(tx *txn.Transaction, table string, key value.Value, row []byte) error {
	t, err := e.tree(table)
	if err != nil {
		return err
	}
	old, ok := t.Get(key)
	if !ok {
		return fmt.Errorf("engine: update table %q: %w", table, enginerr.ErrRowNotFound)
	}
	if err := tx.LogUpdate(table, key, old, row); err != nil {
		return err
	}
	t.Insert(key, row)
	e.hot.Invalidate(table, string(value.EncodeKey(key)))
	e.hot.Wait()
	return nil
}

func (e *Engine) delete(tx *txn.Transaction, table string, key value.Value) error {
	t, err := e.tree(table)
	if err != nil {
		return err
	}
	old, ok := t.Get(key)
	if !ok {
		return nil
	}
	if err := tx.LogDelete(table, key, old); err != nil {
		return err
	}
	t.Delete(key)
	e.hot.Invalidate(table, string(value.EncodeKey(key)))
	e.hot.Wait()
	return nil
}

// SelectByKey performs a point lookup, consulting the hot-row cache
// before falling back to the tree.
func (e *Engine) SelectByKey(table string, key value.Value) ([]byte, bool, error) {
	t, err := e.tree(table)
	if err != nil {
		return nil, false, err
	}
	keyBytes := string(value.EncodeKey(key))
	if row, ok := e.hot.Get(table, keyBytes); ok {
		return row, true, nil
	}
	row, ok := t.Get(key)
	if ok {
		e.hot.Set(table, keyBytes, row)
	}
	return row, ok, nil
}

// Iterate walks every row of table in ascending key order.
func (e *Engine) Iterate(table string, yield func(key value.Value, row []byte) bool) error {
	t, err := e.tree(table)
	if err != nil {
		return err
	}
	t.IterAll(yield)
	return nil
}

// Range walks table's rows within [lo, hi] (either bound nil means
// unbounded) in ascending key order.
func (e *Engine) Range(table string, lo, hi *value.Value, yield func(key value.Value, row []byte) bool) error {
	t, err := e.tree(table)
	if err != nil {
		return err
	}
	t.Range(lo, hi, yield)
	return nil
}

