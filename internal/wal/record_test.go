package wal

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mde/internal/value"
)

func TestRecordEncodeDecodeRoundTrip(t *testing.T) {
	key := value.NewString("k1")
	r := Record{
		TxnID:       9,
		Op:          OpUpdate,
		Table:       "widgets",
		Key:         &key,
		OldValue:    []byte("old"),
		NewValue:    []byte("new"),
		TimestampMs: 123456,
		Sequence:    3,
	}
	body := r.encode()
	got, err := decodeRecord(body)
	require.NoError(t, err)
	require.Equal(t, r.TxnID, got.TxnID)
	require.Equal(t, r.Op, got.Op)
	require.Equal(t, r.Table, got.Table)
	require.Equal(t, r.OldValue, got.OldValue)
	require.Equal(t, r.NewValue, got.NewValue)
	require.Equal(t, r.TimestampMs, got.TimestampMs)
	require.Equal(t, r.Sequence, got.Sequence)
	require.NotNil(t, got.Key)
	require.Equal(t, 0, value.Compare(key, *got.Key))
}

func TestRecordEncodeDecodeNoKey(t *testing.T) {
	r := Record{TxnID: 1, Op: OpBegin, Sequence: 1}
	got, err := decodeRecord(r.encode())
	require.NoError(t, err)
	require.Nil(t, got.Key)
}

func TestDecodeRecordTruncatedBody(t *testing.T) {
	_, err := decodeRecord([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestCalculateCRCDependsOnSequence(t *testing.T) {
	body := []byte("same body")
	require.NotEqual(t, calculateCRC(1, body), calculateCRC(2, body))
	require.Equal(t, calculateCRC(1, body), calculateCRC(1, body))
}

func TestOpKindString(t *testing.T) {
	require.Equal(t, "Insert", OpInsert.String())
	require.Contains(t, OpKind(99).String(), "OpKind")
}
