package slicecopy_test

import (
	"encoding/binary"
	"math"
	"math/rand"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/require"

	"github.com/jbigot/ah5go/slicecopy"
)

func f64Slice(vals ...float64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func decodeF64(buf []byte) []float64 {
	out := make([]float64, len(buf)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8 : i*8+8]))
	}
	return out
}

func TestScalar(t *testing.T) {
	src := f64Slice(42)
	dst := make([]byte, 8)
	slicecopy.Copy(dst, src, 8, nil, nil, nil, false)
	require.Equal(t, []float64{42}, decodeF64(dst))
}

func TestDense2D(t *testing.T) {
	vals := make([]float64, 12)
	for i := range vals {
		vals[i] = float64(i)
	}
	src := f64Slice(vals...)
	dst := make([]byte, 8*12)
	slicecopy.Copy(dst, src, 8, []int{4, 3}, []int{0, 0}, []int{4, 3}, false)
	require.Equal(t, vals, decodeF64(dst))
}

func TestStridedSlice(t *testing.T) {
	vals := make([]float64, 64)
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			vals[i*8+j] = float64(10*i + j)
		}
	}
	src := f64Slice(vals...)
	dst := make([]byte, 8*9)
	slicecopy.Copy(dst, src, 8, []int{8, 8}, []int{2, 3}, []int{5, 6}, false)
	require.Equal(t, []float64{23, 24, 25, 33, 34, 35, 43, 44, 45}, decodeF64(dst))
}

func TestStridedSliceParallel(t *testing.T) {
	vals := make([]float64, 64)
	for i := 0; i < 8; i++ {
		for j := 0; j < 8; j++ {
			vals[i*8+j] = float64(10*i + j)
		}
	}
	src := f64Slice(vals...)
	dst := make([]byte, 8*9)
	slicecopy.Copy(dst, src, 8, []int{8, 8}, []int{2, 3}, []int{5, 6}, true)
	require.Equal(t, []float64{23, 24, 25, 33, 34, 35, 43, 44, 45}, decodeF64(dst))
}

// naiveCopy is a reference implementation of the same contract, written
// as straightforwardly as possible (nested loops, no recursion, no
// parallelism) to check slicecopy.Copy against for arbitrary bounds.
func naiveCopy(src []float64, dims, lbounds, ubounds []int) []float64 {
	rank := len(dims)
	ext := make([]int, rank)
	total := 1
	for d := 0; d < rank; d++ {
		ext[d] = ubounds[d] - lbounds[d]
		total *= ext[d]
	}
	out := make([]float64, total)
	idx := make([]int, rank)
	for i := 0; i < total; i++ {
		rem := i
		srcOff := 0
		stride := 1
		for d := rank - 1; d >= 0; d-- {
			idx[d] = rem % ext[d]
			rem /= ext[d]
		}
		for d := rank - 1; d >= 0; d-- {
			srcOff += (lbounds[d] + idx[d]) * stride
			stride *= dims[d]
		}
		out[i] = src[srcOff]
	}
	return out
}

// TestStridedSlicePropertyMatchesNaiveReference exercises random strided
// sub-array extractions against a naive reference implementation,
// property-testing style, the way the corpus's own bit-manipulation
// packages fuzz arbitrary inputs with testing/quick.
func TestStridedSlicePropertyMatchesNaiveReference(t *testing.T) {
	prop := func(seed int64) bool {
		r := rand.New(rand.NewSource(seed))
		rank := 1 + r.Intn(3)
		dims := make([]int, rank)
		lbounds := make([]int, rank)
		ubounds := make([]int, rank)
		total := 1
		for d := 0; d < rank; d++ {
			dims[d] = 2 + r.Intn(5)
			lbounds[d] = r.Intn(dims[d])
			ubounds[d] = lbounds[d] + 1 + r.Intn(dims[d]-lbounds[d])
			total *= dims[d]
		}
		vals := make([]float64, total)
		for i := range vals {
			vals[i] = float64(i)
		}
		src := f64Slice(vals...)

		want := naiveCopy(vals, dims, lbounds, ubounds)
		n := len(want)
		dst := make([]byte, 8*n)
		slicecopy.Copy(dst, src, 8, dims, lbounds, ubounds, r.Intn(2) == 0)
		got := decodeF64(dst)
		if len(got) != len(want) {
			return false
		}
		for i := range want {
			if got[i] != want[i] {
				return false
			}
		}
		return true
	}
	require.NoError(t, quick.Check(prop, &quick.Config{MaxCount: 200}))
}

func TestLargeDenseParallel(t *testing.T) {
	n := 1 << 20
	vals := make([]float64, n)
	for i := range vals {
		vals[i] = float64(i)
	}
	src := f64Slice(vals...)
	dst := make([]byte, 8*n)
	slicecopy.Copy(dst, src, 8, []int{n}, []int{0}, []int{n}, true)
	require.Equal(t, vals, decodeF64(dst))
}
