// Package enginerr holds the sentinel error values shared across the
// storage engine's subsystems. Call sites wrap these with fmt.Errorf's
// %w verb so callers can still errors.Is against the sentinel through
// any amount of context.
package enginerr

import "errors"

// Open errors (§7).
var (
	ErrNotFound           = errors.New("mde: file not found")
	ErrPermissionDenied   = errors.New("mde: permission denied")
	ErrInvalidMagic       = errors.New("mde: invalid magic number")
	ErrUnsupportedVersion = errors.New("mde: unsupported file version")
	ErrCorruptedHeader    = errors.New("mde: corrupted header page")
)

// Storage errors.
var ErrIO = errors.New("mde: storage i/o failure")

// WAL errors.
var ErrFramingCorruption = errors.New("mde: wal framing corruption")

// Tree errors.
var ErrKeyTypeMismatch = errors.New("mde: key type mismatch")

// Transaction errors.
var ErrInvalidTxnState = errors.New("mde: invalid transaction state")

// Schema / catalog errors (façade, out of core scope).
var (
	ErrDuplicateTable    = errors.New("mde: duplicate table")
	ErrUnknownTable      = errors.New("mde: unknown table")
	ErrUnknownColumn     = errors.New("mde: unknown column")
	ErrPrimaryKeyMissing = errors.New("mde: primary key missing")
	ErrSchemaMismatch    = errors.New("mde: schema mismatch")
	ErrCatalogCorrupted  = errors.New("mde: catalog corrupted")
	ErrRowNotFound       = errors.New("mde: row not found")
)
