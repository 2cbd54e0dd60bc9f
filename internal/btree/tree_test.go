package btree_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"mde/internal/btree"
	"mde/internal/value"
)

func rowFor(i int) []byte { return []byte(fmt.Sprintf("row-%d", i)) }

func TestInsertGetUpsert(t *testing.T) {
	tr := btree.New(btree.DefaultOrder, value.TypeInt32)

	tr.Insert(value.NewInt32(1), []byte("a"))
	v, ok := tr.Get(value.NewInt32(1))
	require.True(t, ok)
	require.Equal(t, []byte("a"), v)

	tr.Insert(value.NewInt32(1), []byte("b"))
	v, ok = tr.Get(value.NewInt32(1))
	require.True(t, ok)
	require.Equal(t, []byte("b"), v, "insert must upsert an existing key")
	require.Equal(t, 1, tr.Len())
}

func TestGetMissingKey(t *testing.T) {
	tr := btree.New(btree.DefaultOrder, value.TypeInt32)
	_, ok := tr.Get(value.NewInt32(42))
	require.False(t, ok)
}

func TestKeyTypeMismatchPanics(t *testing.T) {
	tr := btree.New(btree.DefaultOrder, value.TypeInt32)
	require.Panics(t, func() { tr.Insert(value.NewString("nope"), []byte("x")) })
	require.Panics(t, func() { tr.Get(value.NewString("nope")) })
}

func TestSplitLeafAndInternalOnManyInserts(t *testing.T) {
	tr := btree.New(5, value.TypeInt32) // small order forces splits quickly
	const n = 500
	for i := 0; i < n; i++ {
		tr.Insert(value.NewInt32(int32(i)), rowFor(i))
	}
	require.Equal(t, n, tr.Len())

	for i := 0; i < n; i++ {
		v, ok := tr.Get(value.NewInt32(int32(i)))
		require.True(t, ok, "missing key %d after splits", i)
		require.Equal(t, rowFor(i), v)
	}
}

func TestIterAllAscendingOrder(t *testing.T) {
	tr := btree.New(4, value.TypeInt32)
	inserted := []int32{5, 1, 9, 3, 7, 2, 8, 4, 6, 0}
	for _, k := range inserted {
		tr.Insert(value.NewInt32(k), rowFor(int(k)))
	}

	var seen []int32
	tr.IterAll(func(k value.Value, val []byte) bool {
		seen = append(seen, k.Raw().(int32))
		return true
	})
	require.Equal(t, []int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, seen)
}

func TestIterAllEarlyStop(t *testing.T) {
	tr := btree.New(4, value.TypeInt32)
	for i := int32(0); i < 20; i++ {
		tr.Insert(value.NewInt32(i), rowFor(int(i)))
	}
	count := 0
	tr.IterAll(func(k value.Value, val []byte) bool {
		count++
		return count < 5
	})
	require.Equal(t, 5, count)
}

func TestRangeBoundedAndUnbounded(t *testing.T) {
	tr := btree.New(4, value.TypeInt32)
	for i := int32(0); i < 20; i++ {
		tr.Insert(value.NewInt32(i), rowFor(int(i)))
	}

	lo := value.NewInt32(5)
	hi := value.NewInt32(9)
	var got []int32
	tr.Range(&lo, &hi, func(k value.Value, val []byte) bool {
		got = append(got, k.Raw().(int32))
		return true
	})
	require.Equal(t, []int32{5, 6, 7, 8, 9}, got)

	got = got[:0]
	tr.Range(nil, &hi, func(k value.Value, val []byte) bool {
		got = append(got, k.Raw().(int32))
		return true
	})
	require.Equal(t, []int32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)

	got = got[:0]
	loOnly := value.NewInt32(18)
	tr.Range(&loOnly, nil, func(k value.Value, val []byte) bool {
		got = append(got, k.Raw().(int32))
		return true
	})
	require.Equal(t, []int32{18, 19}, got)
}

func TestDeleteRebalancesAndKeepsOrder(t *testing.T) {
	tr := btree.New(4, value.TypeInt32)
	const n = 200
	for i := 0; i < n; i++ {
		tr.Insert(value.NewInt32(int32(i)), rowFor(i))
	}

	for i := 0; i < n; i += 2 {
		ok := tr.Delete(value.NewInt32(int32(i)))
		require.True(t, ok, "delete of key %d should report found", i)
	}
	require.Equal(t, n/2, tr.Len())

	var seen []int32
	tr.IterAll(func(k value.Value, val []byte) bool {
		seen = append(seen, k.Raw().(int32))
		return true
	})
	require.Len(t, seen, n/2)
	for i, k := range seen {
		require.Equal(t, int32(i*2+1), k)
	}
}

func TestDeleteMissingKeyReportsFalse(t *testing.T) {
	tr := btree.New(btree.DefaultOrder, value.TypeInt32)
	tr.Insert(value.NewInt32(1), []byte("a"))
	require.False(t, tr.Delete(value.NewInt32(999)))
}

func TestDeleteAllKeysLeavesEmptyTree(t *testing.T) {
	tr := btree.New(4, value.TypeInt32)
	for i := 0; i < 50; i++ {
		tr.Insert(value.NewInt32(int32(i)), rowFor(i))
	}
	for i := 0; i < 50; i++ {
		require.True(t, tr.Delete(value.NewInt32(int32(i))))
	}
	require.Equal(t, 0, tr.Len())
	_, ok := tr.Get(value.NewInt32(0))
	require.False(t, ok)
}

func TestMinimumOrderClampedTo3(t *testing.T) {
	tr := btree.New(1, value.TypeInt32)
	for i := 0; i < 30; i++ {
		tr.Insert(value.NewInt32(int32(i)), rowFor(i))
	}
	require.Equal(t, 30, tr.Len())
}
