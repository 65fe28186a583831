package stage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jbigot/ah5go/stage"
)

func testCycle(t *testing.T, b stage.Buffer) {
	ok, err := b.EnsureCapacity(8)
	require.NoError(t, err)
	require.True(t, ok)
	b.Reset()
	require.GreaterOrEqual(t, b.Remaining(), 8)

	dst := b.Take(8)
	require.Len(t, dst, 8)
	copy(dst, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	require.Equal(t, byte(8), dst[7])
}

func TestDynamicBufferGrows(t *testing.T) {
	b := stage.NewDynamic()
	testCycle(t, b)
	require.NoError(t, b.Close())
}

func TestDynamicBufferRespectsMax(t *testing.T) {
	b := stage.NewDynamic()
	b.MaxBytes = 4
	ok, err := b.EnsureCapacity(8)
	require.Error(t, err)
	require.False(t, ok)
}

func TestFixedBufferOverflow(t *testing.T) {
	b := stage.NewFixed(nil, 4)
	ok, err := b.EnsureCapacity(8)
	require.NoError(t, err)
	require.False(t, ok)

	b.Reset()
	ok, err = b.EnsureCapacity(4)
	require.NoError(t, err)
	require.True(t, ok)
	dst := b.Take(4)
	require.Len(t, dst, 4)
}

func TestFixedBufferCallerSupplied(t *testing.T) {
	backing := make([]byte, 16)
	b := stage.NewFixed(backing, 16)
	testCycle(t, b)
}

func TestFixedBufferGrowable(t *testing.T) {
	b := stage.NewFixed(nil, 0)
	testCycle(t, b)

	b.Reset()
	ok, err := b.EnsureCapacity(1 << 20)
	require.NoError(t, err)
	require.True(t, ok)
	dst := b.Take(1 << 20)
	require.Len(t, dst, 1<<20)
}

func TestMappedBufferGrowable(t *testing.T) {
	dir := t.TempDir()
	b, err := stage.NewMapped(dir, 0)
	require.NoError(t, err)
	defer b.Close()

	testCycle(t, b)

	b.Reset()
	ok, err := b.EnsureCapacity(1 << 20)
	require.NoError(t, err)
	require.True(t, ok)
	dst := b.Take(1 << 20)
	require.Len(t, dst, 1<<20)
}

func TestMappedBufferFixedCapacity(t *testing.T) {
	dir := t.TempDir()
	b, err := stage.NewMapped(dir, 4096)
	require.NoError(t, err)
	defer b.Close()

	ok, err := b.EnsureCapacity(1 << 20)
	require.NoError(t, err)
	require.False(t, ok)
}
