package writer_test

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jbigot/ah5go/storage"
	"github.com/jbigot/ah5go/storage/native"
	"github.com/jbigot/ah5go/writer"
)

func f64Bytes(vals ...float64) []byte {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return b
}

// readDataset re-reads one dataset's bytes back out of a native container
// file, for round-trip assertions.
func readDataset(t *testing.T, path, name string) []byte {
	t.Helper()
	r, err := native.Open(path)
	require.NoError(t, err)
	defer r.Close()
	for {
		rec, ok, err := r.Next()
		require.NoError(t, err)
		if !ok {
			t.Fatalf("dataset %q not found in %s", name, path)
		}
		if rec.Name == name {
			return rec.Data
		}
	}
}

func TestOpenWriteCloseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.ah5")

	inst := writer.New(native.New())
	require.NoError(t, inst.Open(path))
	data := f64Bytes(1, 2, 3, 4)
	require.NoError(t, inst.Write("a", data, 1, []int{4}, []int{0}, []int{4}, storage.Float64))
	require.NoError(t, inst.Close())
	require.NoError(t, inst.Finalize())

	got := readDataset(t, path, "a")
	require.Equal(t, data, got)
}

func TestProducerBufferMutationAfterCloseDoesNotAffectOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.ah5")

	inst := writer.New(native.New())
	require.NoError(t, inst.Open(path))
	data := f64Bytes(10, 20, 30, 40)
	require.NoError(t, inst.Write("a", data, 1, []int{4}, []int{0}, []int{4}, storage.Float64))
	require.NoError(t, inst.Close())

	// Close has already snapshotted the bytes; mutating the producer's
	// buffer afterward must not change what eventually lands on disk.
	for i := range data {
		data[i] = 0xFF
	}

	require.NoError(t, inst.Finalize())
	got := readDataset(t, path, "a")
	require.Equal(t, f64Bytes(10, 20, 30, 40), got)
}

func TestMultipleDatasetsPreserveOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.ah5")

	inst := writer.New(native.New())
	require.NoError(t, inst.Open(path))
	require.NoError(t, inst.Write("x", f64Bytes(1), 0, nil, nil, nil, storage.Float64))
	require.NoError(t, inst.Write("y", f64Bytes(2), 0, nil, nil, nil, storage.Float64))
	require.NoError(t, inst.Write("z", f64Bytes(3), 0, nil, nil, nil, storage.Float64))
	require.NoError(t, inst.Close())
	require.NoError(t, inst.Finalize())

	r, err := native.Open(path)
	require.NoError(t, err)
	defer r.Close()
	var names []string
	for {
		rec, ok, err := r.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		names = append(names, rec.Name)
	}
	require.Equal(t, []string{"x", "y", "z"}, names)
}

func TestScalarPromotedToRankOneArray(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.ah5")

	inst := writer.New(native.New(), writer.WithScalarAsArray(true))
	require.NoError(t, inst.Open(path))
	require.NoError(t, inst.Write("s", f64Bytes(7), 0, nil, nil, nil, storage.Float64))
	require.NoError(t, inst.Close())
	require.NoError(t, inst.Finalize())

	got := readDataset(t, path, "s")
	require.Equal(t, f64Bytes(7), got)

	r, err := native.Open(path)
	require.NoError(t, err)
	defer r.Close()
	rec, ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []int{1}, rec.Dims)
}

func TestWriteWithoutOpenFails(t *testing.T) {
	inst := writer.New(native.New())
	err := inst.Write("a", f64Bytes(1), 0, nil, nil, nil, storage.Float64)
	require.Error(t, err)
	require.NoError(t, inst.Finalize())
}

func TestDoubleOpenFails(t *testing.T) {
	dir := t.TempDir()
	inst := writer.New(native.New())
	require.NoError(t, inst.Open(filepath.Join(dir, "a.ah5")))
	err := inst.Open(filepath.Join(dir, "b.ah5"))
	require.Error(t, err)
	require.NoError(t, inst.Close())
	require.NoError(t, inst.Finalize())
}

func TestFinalizeWithOpenFileFails(t *testing.T) {
	dir := t.TempDir()
	inst := writer.New(native.New())
	require.NoError(t, inst.Open(filepath.Join(dir, "a.ah5")))
	require.Error(t, inst.Finalize())
	require.NoError(t, inst.Close())
	require.NoError(t, inst.Finalize())
}

func TestFixedStagingOverflowFallsBackToSynchronousWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.ah5")

	// 8 bytes of staging is enough for one 8-byte scalar but not two;
	// the second record must fall back to a synchronous write.
	inst := writer.NewMem(native.New(), nil, 8)
	require.NoError(t, inst.Open(path))
	require.NoError(t, inst.Write("a", f64Bytes(1), 0, nil, nil, nil, storage.Float64))
	require.NoError(t, inst.Write("b", f64Bytes(2), 0, nil, nil, nil, storage.Float64))
	require.NoError(t, inst.Close())
	require.NoError(t, inst.Finalize())

	require.Equal(t, f64Bytes(1), readDataset(t, path, "a"))
	require.Equal(t, f64Bytes(2), readDataset(t, path, "b"))
}

func TestPipelinedOpenCloseAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	inst := writer.New(native.New())
	for i := 0; i < 3; i++ {
		path := filepath.Join(dir, "f.ah5")
		require.NoError(t, inst.Open(path))
		require.NoError(t, inst.Write("v", f64Bytes(float64(i)), 0, nil, nil, nil, storage.Float64))
		require.NoError(t, inst.Close())
	}
	require.NoError(t, inst.Finalize())
}
