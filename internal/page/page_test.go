package page_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mde/internal/page"
)

func TestNewIsZeroFilled(t *testing.T) {
	p := page.New(3)
	require.Equal(t, uint32(3), p.ID)
	require.False(t, p.Dirty)
	for _, b := range p.Data {
		require.Zero(t, b)
	}
}

func TestMarkDirtyRequiresLock(t *testing.T) {
	p := page.New(1)
	p.Lock()
	p.Data[0] = 0xFF
	p.MarkDirty()
	p.Unlock()
	require.True(t, p.Dirty)
}

func TestCloneIsIndependent(t *testing.T) {
	p := page.New(5)
	p.Lock()
	p.Data[0] = 9
	p.MarkDirty()
	p.Unlock()

	clone := p.Clone()
	clone.Data[0] = 1

	require.Equal(t, byte(9), p.Data[0])
	require.Equal(t, byte(1), clone.Data[0])
	require.Equal(t, p.ID, clone.ID)
	require.True(t, clone.Dirty)
}
